package score

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/orefield/specharvest/internal/specs"
)

// OEM sites. Subdomains match through the domain-hierarchy walk.
var oemDomains = map[string]struct{}{
	"komatsu.com": {}, "cat.com": {}, "caterpillar.com": {}, "liebherr.com": {},
	"hitachicm.com": {}, "hitachi-c-m.com": {},
	"volvoce.com": {}, "volvo.com": {}, "deere.com": {}, "johndeere.com": {},
	"komatsu-mining.com": {}, "mining.komatsu": {},
	"xcmg.com": {}, "sanygroup.com": {}, "sany.com.cn": {}, "zoomlion.com": {},
	"liugong.com": {}, "sdlg.com": {}, "shantui.com": {},
	"belaz.by": {}, "belaz.com": {},
	"epiroc.com": {}, "sandvik.com": {}, "metso.com": {},
	"terex.com": {}, "doosan.com": {}, "hyundai-ce.com": {},
}

// Spec aggregator databases and mining industry publications. Both sit in
// the third-party tier; they republish OEM data with varying care.
var thirdPartyDomains = map[string]struct{}{
	"lectura.specs": {}, "lectura-specs.com": {}, "ritchiespecs.com": {},
	"specguideonline.com": {}, "machinemarket.co.za": {},
	"equipmentwatch.com": {}, "ironplanet.com": {},
	"mascus.com": {}, "machinerytrader.com": {},
	"heavyequipments.net": {}, "heavyequipmentguide.ca": {},
	"mining.com": {}, "miningmagazine.com": {}, "mining-technology.com": {},
	"e-mj.com": {}, "miningglobal.com": {}, "australianmining.com.au": {},
	"im-mining.com": {}, "miningweekly.com": {},
	"international-mining.com": {}, "mining-journal.com": {},
}

var dealerRE = regexp.MustCompile(`(?i)dealer|parts|rental|used|second.?hand|pre.?owned`)

// ClassifyTier maps a source URL to its trust tier. OEM PDFs count as
// oem_primary; other PDFs are oem_secondary since brochures are almost
// always official material mirrored elsewhere.
func ClassifyTier(rawURL string) specs.SourceTier {
	if rawURL == "" {
		return specs.TierUnknown
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return specs.TierUnknown
	}
	domain := strings.ToLower(parsed.Hostname())
	domain = strings.TrimPrefix(domain, "www.")
	path := strings.ToLower(parsed.Path)

	if strings.HasSuffix(path, ".pdf") {
		if matchesDomainSet(domain, oemDomains) {
			return specs.TierOEMPrimary
		}
		return specs.TierOEMSecondary
	}
	if matchesDomainSet(domain, oemDomains) {
		return specs.TierOEMPrimary
	}
	if matchesDomainSet(domain, thirdPartyDomains) {
		return specs.TierThirdParty
	}
	if dealerRE.MatchString(domain) || dealerRE.MatchString(path) {
		return specs.TierDealer
	}
	return specs.TierUnknown
}

// matchesDomainSet walks up the domain hierarchy so shop.cat.com matches
// cat.com without a substring scan.
func matchesDomainSet(domain string, set map[string]struct{}) bool {
	if _, ok := set[domain]; ok {
		return true
	}
	parts := strings.Split(domain, ".")
	for i := 1; i < len(parts)-1; i++ {
		if _, ok := set[strings.Join(parts[i:], ".")]; ok {
			return true
		}
	}
	return false
}
