package jurisdiction

// DefaultAliases lists known spelling variants of jurisdictions served by
// the deployment. It is static configuration, not user-editable.
var DefaultAliases = map[string][]string{
	"cebu":      {"cebu city", "city of cebu", "cebu"},
	"mandaue":   {"mandaue city", "city of mandaue", "mandaue"},
	"lapu-lapu": {"lapu-lapu city", "lapulapu city", "lapulapu", "city of lapu-lapu", "opon"},
	"talisay":   {"talisay city", "city of talisay", "talisay"},
	"danao":     {"danao city", "city of danao", "danao"},
	"toledo":    {"toledo city", "city of toledo", "toledo"},
	"carcar":    {"carcar city", "city of carcar", "carcar"},
	"naga":      {"naga city", "city of naga", "naga"},
	"consolacion": {
		"consolacion", "municipality of consolacion", "consolacion municipality",
	},
	"liloan": {"liloan", "lilo-an", "municipality of liloan"},
}
