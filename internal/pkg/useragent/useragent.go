package useragent

import (
	"strings"

	"github.com/omalk98/tracker-mailer/internal/models"
)

// Breakdown is the parsed structure of a raw User-Agent header.
type Breakdown struct {
	OS      models.OSInfo
	Browser models.BrowserInfo
	Engine  models.EngineInfo
	Device  models.DeviceInfo
	CPU     models.CPUInfo
}

var botKeywords = []string{
	"bot", "crawler", "spider", "headless", "wget", "curl",
	"python-requests", "go-http", "java/", "scrapy",
}

// IsBot returns true if the User-Agent string indicates a bot/crawler.
func IsBot(ua string) bool {
	lower := strings.ToLower(ua)
	for _, kw := range botKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Parse extracts OS, browser, engine, device and CPU details from a raw
// User-Agent header. Unknown segments stay empty rather than guessing.
func Parse(ua string) Breakdown {
	lower := strings.ToLower(ua)
	b := Breakdown{}

	b.Browser = parseBrowser(ua, lower)
	b.Engine = parseEngine(ua, lower)
	b.OS = parseOS(ua, lower)
	b.Device = parseDevice(lower)
	b.CPU = parseCPU(lower)

	return b
}

func parseBrowser(ua, lower string) models.BrowserInfo {
	var name, version string
	switch {
	case strings.Contains(lower, "edg/"):
		name, version = "Edge", versionAfter(ua, lower, "edg/")
	case strings.Contains(lower, "opr/"):
		name, version = "Opera", versionAfter(ua, lower, "opr/")
	case strings.Contains(lower, "chrome/"):
		name, version = "Chrome", versionAfter(ua, lower, "chrome/")
	case strings.Contains(lower, "safari/") && strings.Contains(lower, "version/"):
		name, version = "Safari", versionAfter(ua, lower, "version/")
	case strings.Contains(lower, "firefox/"):
		name, version = "Firefox", versionAfter(ua, lower, "firefox/")
	case strings.Contains(lower, "msie ") || strings.Contains(lower, "trident/"):
		name, version = "IE", versionAfter(ua, lower, "rv:")
	}

	major := version
	if idx := strings.IndexByte(major, '.'); idx >= 0 {
		major = major[:idx]
	}
	return models.BrowserInfo{Name: name, Version: version, Major: major}
}

func parseEngine(ua, lower string) models.EngineInfo {
	switch {
	case strings.Contains(lower, "chrome/"), strings.Contains(lower, "edg/"), strings.Contains(lower, "opr/"):
		return models.EngineInfo{Name: "Blink", Version: versionAfter(ua, lower, "chrome/")}
	case strings.Contains(lower, "applewebkit/"):
		return models.EngineInfo{Name: "WebKit", Version: versionAfter(ua, lower, "applewebkit/")}
	case strings.Contains(lower, "gecko/") && strings.Contains(lower, "firefox/"):
		return models.EngineInfo{Name: "Gecko", Version: versionAfter(ua, lower, "firefox/")}
	case strings.Contains(lower, "trident/"):
		return models.EngineInfo{Name: "Trident", Version: versionAfter(ua, lower, "trident/")}
	}
	return models.EngineInfo{}
}

func parseOS(ua, lower string) models.OSInfo {
	switch {
	case strings.Contains(lower, "windows nt"):
		nt := versionAfter(ua, lower, "windows nt ")
		return models.OSInfo{Name: "Windows", Version: windowsVersion(nt)}
	case strings.Contains(lower, "iphone os"):
		return models.OSInfo{Name: "iOS", Version: underscoresToDots(versionAfter(ua, lower, "iphone os "))}
	case strings.Contains(lower, "cpu os") && strings.Contains(lower, "ipad"):
		return models.OSInfo{Name: "iOS", Version: underscoresToDots(versionAfter(ua, lower, "cpu os "))}
	case strings.Contains(lower, "mac os x"):
		return models.OSInfo{Name: "macOS", Version: underscoresToDots(versionAfter(ua, lower, "mac os x "))}
	case strings.Contains(lower, "android"):
		return models.OSInfo{Name: "Android", Version: versionAfter(ua, lower, "android ")}
	case strings.Contains(lower, "linux"):
		return models.OSInfo{Name: "Linux"}
	}
	return models.OSInfo{}
}

func parseDevice(lower string) models.DeviceInfo {
	d := models.DeviceInfo{Type: "desktop"}
	switch {
	case strings.Contains(lower, "bot"), strings.Contains(lower, "crawler"), strings.Contains(lower, "spider"):
		d.Type = "bot"
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"):
		d.Type = "tablet"
	case strings.Contains(lower, "mobile"):
		d.Type = "mobile"
	}

	switch {
	case strings.Contains(lower, "iphone"):
		d.Vendor, d.Model = "Apple", "iPhone"
	case strings.Contains(lower, "ipad"):
		d.Vendor, d.Model = "Apple", "iPad"
	case strings.Contains(lower, "macintosh"):
		d.Vendor, d.Model = "Apple", "Macintosh"
	case strings.Contains(lower, "pixel"):
		d.Vendor = "Google"
	case strings.Contains(lower, "sm-"):
		d.Vendor = "Samsung"
	}
	return d
}

func parseCPU(lower string) models.CPUInfo {
	switch {
	case strings.Contains(lower, "x86_64"), strings.Contains(lower, "x64"), strings.Contains(lower, "win64"), strings.Contains(lower, "wow64"):
		return models.CPUInfo{Architecture: "amd64"}
	case strings.Contains(lower, "aarch64"), strings.Contains(lower, "arm64"):
		return models.CPUInfo{Architecture: "arm64"}
	case strings.Contains(lower, "arm"):
		return models.CPUInfo{Architecture: "arm"}
	case strings.Contains(lower, "i686"), strings.Contains(lower, "i386"):
		return models.CPUInfo{Architecture: "ia32"}
	}
	return models.CPUInfo{}
}

// versionAfter returns the token in ua immediately following marker, cut at
// the first space, semicolon or closing paren. The marker is matched against
// the lowercased header so callers pass a lowercase marker.
func versionAfter(ua, lower, marker string) string {
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return ""
	}
	rest := ua[idx+len(marker):]
	end := len(rest)
	for i := 0; i < len(rest); i++ {
		if rest[i] == ' ' || rest[i] == ';' || rest[i] == ')' || rest[i] == ',' {
			end = i
			break
		}
	}
	return rest[:end]
}

func underscoresToDots(v string) string {
	return strings.ReplaceAll(v, "_", ".")
}

func windowsVersion(nt string) string {
	switch nt {
	case "10.0":
		return "10"
	case "6.3":
		return "8.1"
	case "6.2":
		return "8"
	case "6.1":
		return "7"
	default:
		return nt
	}
}
