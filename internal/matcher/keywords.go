package matcher

import "github.com/sells-group/govscout/internal/model"

// certSetAsideKeywords maps each certification to the set-aside phrases
// SAM.gov uses for it. Matching is a case-insensitive substring test
// against the opportunity's free-text set-aside field.
var certSetAsideKeywords = map[model.Certification][]string{
	model.Cert8A:            {"8(a)", "8a", "eight-a"},
	model.CertHUBZone:       {"hubzone", "hub zone"},
	model.CertSDVOSB:        {"service-disabled veteran", "sdvosb", "sdv"},
	model.CertVOSB:          {"veteran-owned", "vosb"},
	model.CertWOSB:          {"women-owned", "wosb"},
	model.CertEDWOSB:        {"economically disadvantaged", "edwosb"},
	model.CertSDB:           {"small disadvantaged", "sdb"},
	model.CertSB:            {"small business"},
	model.CertMinorityOwned: {"minority"},
	model.CertAbilityOne:    {"abilityone", "ability one"},
}
