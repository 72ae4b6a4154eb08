// Package fingerprint produces internally consistent browser fingerprints and
// the network-level (TLS/HTTP) and behavioral (mouse-path) signals that must
// stay coherent with them.
//
// Generate is deterministic from a seed: the same 256-bit seed always
// produces the same Fingerprint, which is what lets a persisted profile
// reproduce bit-identically on relaunch. All random choices route through a
// single *rand.Rand so there is exactly one source of entropy to seed.
package fingerprint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"

	"github.com/firasghr/goantidetect/model"
)

// UnknownPlatformError is returned by GenerateForPlatform when the requested
// family is not in the closed platform set.
type UnknownPlatformError struct {
	Family model.PlatformFamily
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("fingerprint: unknown platform family %q", e.Family)
}

// platformWeight pairs a platform family with its selection weight. Weights
// are integers summing to 100 so cumulative sampling reads as a percentage.
type platformWeight struct {
	family model.PlatformFamily
	weight int
}

// platformWeights mirrors the reference generator's split: Windows 65% total
// (55 win32 + 10 win11), macOS 20% (12 Intel + 8 Apple Silicon), Linux 5%,
// leaving 10% unaccounted for in a coarser "other" bucket, folded back into
// win32 since no fourth OS family is in scope.
var platformWeights = []platformWeight{
	{model.FamilyWin32, 65},
	{model.FamilyWin11, 10},
	{model.FamilyMacOS, 12},
	{model.FamilyMacARM, 8},
	{model.FamilyLinux, 5},
}

// SetPlatformWeights overrides the default platform-family sampling weights
// that Generate and GenerateFromSeed draw from. weights is keyed by a
// model.PlatformFamily string value ("win32", "win11", "macos", "macos_arm",
// "linux"); families absent from weights keep their built-in weight, and
// keys naming a family outside the closed set are ignored. Call once at
// startup before any generation happens - it mutates shared package state
// and is not safe to call concurrently with Generate/GenerateFromSeed.
func SetPlatformWeights(weights map[string]int) {
	if len(weights) == 0 {
		return
	}
	updated := make([]platformWeight, len(platformWeights))
	for i, pw := range platformWeights {
		w := pw.weight
		if override, ok := weights[string(pw.family)]; ok {
			w = override
		}
		updated[i] = platformWeight{family: pw.family, weight: w}
	}
	platformWeights = updated
}

type platformInfo struct {
	navigatorPlatform string
	vendor            string
	oscpu             string
	chromeUA          func(chromeVersion string) string
	firefoxUA         func(ffVersion string) string
}

var platformTable = map[model.PlatformFamily]platformInfo{
	model.FamilyWin32: {
		navigatorPlatform: "Win32",
		vendor:            "Google Inc.",
		chromeUA: func(v string) string {
			return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + v + " Safari/537.36"
		},
		firefoxUA: func(v string) string {
			return "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:" + v + ") Gecko/20100101 Firefox/" + v
		},
	},
	model.FamilyWin11: {
		navigatorPlatform: "Win32",
		vendor:            "Google Inc.",
		chromeUA: func(v string) string {
			return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + v + " Safari/537.36"
		},
		firefoxUA: func(v string) string {
			return "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:" + v + ") Gecko/20100101 Firefox/" + v
		},
	},
	model.FamilyMacOS: {
		navigatorPlatform: "MacIntel",
		vendor:            "Google Inc.",
		chromeUA: func(v string) string {
			return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + v + " Safari/537.36"
		},
		firefoxUA: func(v string) string {
			return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:" + v + ") Gecko/20100101 Firefox/" + v
		},
	},
	model.FamilyMacARM: {
		navigatorPlatform: "MacIntel",
		vendor:            "Google Inc.",
		chromeUA: func(v string) string {
			return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + v + " Safari/537.36"
		},
		firefoxUA: func(v string) string {
			return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:" + v + ") Gecko/20100101 Firefox/" + v
		},
	},
	model.FamilyLinux: {
		navigatorPlatform: "Linux x86_64",
		vendor:            "Google Inc.",
		oscpu:             "Linux x86_64",
		chromeUA: func(v string) string {
			return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + v + " Safari/537.36"
		},
		firefoxUA: func(v string) string {
			return "Mozilla/5.0 (X11; Linux x86_64; rv:" + v + ") Gecko/20100101 Firefox/" + v
		},
	},
}

var chromeVersions = []string{"118.0.5993.90", "119.0.6045.159", "120.0.6099.129", "121.0.6167.85", "122.0.6261.94"}

var screenResolutions = []struct {
	w, h, weight int
}{
	{1920, 1080, 28}, {1366, 768, 18}, {1536, 864, 14}, {1440, 900, 10},
	{1280, 720, 8}, {2560, 1440, 8}, {1600, 900, 6}, {1680, 1050, 4}, {3840, 2160, 4},
}

type gpuEntry struct{ vendor, renderer string }

var webglTable = map[model.PlatformFamily][]gpuEntry{
	model.FamilyWin32: {
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	},
	model.FamilyWin11: {
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	},
	model.FamilyMacOS: {
		{"Google Inc. (Intel Inc.)", "ANGLE (Intel Inc., Intel(R) Iris(TM) Plus Graphics 650, OpenGL 4.1)"},
		{"Apple Inc.", "Apple GPU"},
	},
	model.FamilyMacARM: {
		{"Apple Inc.", "Apple M1"},
		{"Apple Inc.", "Apple M2"},
		{"Apple Inc.", "Apple M3"},
	},
	model.FamilyLinux: {
		{"X.Org", "AMD Radeon RX 5700 XT (NAVI10, DRM 3.40.0, 5.15.0, LLVM 12.0.0)"},
		{"Mesa/X.org", "llvmpipe (LLVM 12.0.0, 256 bits)"},
	},
}

var timezones = []struct {
	id      string
	offset  int
	weight  int
}{
	{"America/New_York", 300, 15}, {"America/Chicago", 360, 10}, {"America/Denver", 420, 6},
	{"America/Los_Angeles", 480, 14}, {"Europe/London", 0, 12}, {"Europe/Berlin", -60, 10},
	{"Europe/Paris", -60, 6}, {"Europe/Moscow", -180, 5}, {"Asia/Tokyo", -540, 6},
	{"Asia/Shanghai", -480, 6}, {"Asia/Kolkata", -330, 4}, {"Australia/Sydney", -660, 3},
	{"America/Sao_Paulo", 180, 3},
}

var languages = []struct{ primary string; list []string }{
	{"en-US", []string{"en-US", "en"}},
	{"en-GB", []string{"en-GB", "en"}},
	{"de-DE", []string{"de-DE", "de", "en"}},
	{"fr-FR", []string{"fr-FR", "fr", "en"}},
	{"es-ES", []string{"es-ES", "es", "en"}},
	{"pt-BR", []string{"pt-BR", "pt", "en"}},
	{"ja-JP", []string{"ja-JP", "ja", "en"}},
}

var fontsByFamily = map[model.PlatformFamily][]string{
	model.FamilyWin32: {"Arial", "Calibri", "Cambria", "Candara", "Comic Sans MS", "Consolas", "Constantia", "Corbel", "Courier New", "Georgia", "Impact", "Lucida Console", "Lucida Sans Unicode", "Microsoft Sans Serif", "Palatino Linotype", "Segoe UI", "Tahoma", "Times New Roman", "Trebuchet MS", "Verdana"},
	model.FamilyWin11: {"Arial", "Calibri", "Cambria", "Candara", "Consolas", "Constantia", "Corbel", "Courier New", "Georgia", "Lucida Console", "Lucida Sans Unicode", "Microsoft Sans Serif", "Palatino Linotype", "Segoe UI", "Segoe UI Variable", "Tahoma", "Times New Roman", "Trebuchet MS", "Verdana"},
	model.FamilyMacOS: {"American Typewriter", "Andale Mono", "Arial", "Arial Black", "Avenir", "Baskerville", "Big Caslon", "Courier New", "Futura", "Geneva", "Georgia", "Gill Sans", "Helvetica", "Helvetica Neue", "Hoefler Text", "Lucida Grande", "Monaco", "Optima", "Palatino", "Times New Roman", "Verdana"},
	model.FamilyMacARM: {"American Typewriter", "Andale Mono", "Arial", "Arial Black", "Avenir", "Baskerville", "Courier New", "Futura", "Geneva", "Georgia", "Gill Sans", "Helvetica", "Helvetica Neue", "Hoefler Text", "Lucida Grande", "Monaco", "Optima", "Palatino", "SF Pro", "Times New Roman", "Verdana"},
	model.FamilyLinux: {"DejaVu Sans", "DejaVu Sans Mono", "DejaVu Serif", "Droid Sans", "Droid Sans Mono", "FreeMono", "FreeSans", "FreeSerif", "Liberation Mono", "Liberation Sans", "Liberation Serif", "Noto Sans", "Ubuntu", "Ubuntu Mono"},
}

var pluginsClosedList = []string{"PDF Viewer", "Chrome PDF Viewer", "Chromium PDF Viewer", "Microsoft Edge PDF Viewer", "WebKit built-in PDF"}

var hardwareConcurrencyTable = []int{2, 4, 6, 8, 10, 12, 16, 20, 24, 32}
var deviceMemoryTable = []int{2, 4, 8, 16, 32}
var devicePixelRatioTable = []float64{1.0, 1.25, 1.5, 2.0, 2.5, 3.0}
var colorDepthTable = []int{24, 30, 32}
var audioSampleRates = []int{44100, 48000}

// Generate produces a Fingerprint with a fresh random platform and seed.
func Generate() (*model.Fingerprint, error) {
	seed, err := randomSeedHex()
	if err != nil {
		return nil, err
	}
	rng := rngFromSeed(seed)
	family := pickPlatformFamily(rng)
	return build(rng, family), nil
}

// GenerateForPlatform produces a Fingerprint fixed to family, with a fresh
// random seed. Returns UnknownPlatformError if family is not in the table.
func GenerateForPlatform(family model.PlatformFamily) (*model.Fingerprint, error) {
	if _, ok := platformTable[family]; !ok {
		return nil, &UnknownPlatformError{Family: family}
	}
	seed, err := randomSeedHex()
	if err != nil {
		return nil, err
	}
	rng := rngFromSeed(seed)
	return build(rng, family), nil
}

// GenerateFromSeed is deterministic: the same seed always yields a
// bit-identical Fingerprint, with platform chosen by the seed itself.
func GenerateFromSeed(seed string) *model.Fingerprint {
	rng := rngFromSeed(seed)
	family := pickPlatformFamily(rng)
	return build(rng, family)
}

// GenerateForPlatformFromSeed composes deterministic seeding with a fixed
// platform, used by the session manager when a caller pins both.
func GenerateForPlatformFromSeed(seed string, family model.PlatformFamily) (*model.Fingerprint, error) {
	if _, ok := platformTable[family]; !ok {
		return nil, &UnknownPlatformError{Family: family}
	}
	rng := rngFromSeed(seed)
	return build(rng, family), nil
}

// Validate checks every invariant from the data model: vendor/platform
// agreement, hardware-concurrency membership, languages[0] == language,
// availHeight <= height, and webgl unmasked renderer platform-consistency.
func Validate(fp *model.Fingerprint) bool {
	if fp == nil {
		return false
	}
	if len(fp.Navigator.Languages) == 0 || fp.Navigator.Languages[0] != fp.Navigator.Language {
		return false
	}
	if fp.Screen.AvailHeight > fp.Screen.Height {
		return false
	}
	if !contains(hardwareConcurrencyTable, fp.Navigator.HardwareConcurrency) {
		return false
	}
	if !containsFloat(devicePixelRatioTable, fp.Screen.DevicePixelRatio) {
		return false
	}
	if !containsInt(colorDepthTable, fp.Screen.ColorDepth) {
		return false
	}
	if fp.Navigator.Webdriver {
		return false
	}
	if fp.Navigator.Vendor == "" || fp.WebGL.UnmaskedRenderer == "" {
		return false
	}
	for family, info := range platformTable {
		if info.navigatorPlatform != fp.Navigator.Platform || info.vendor != fp.Navigator.Vendor {
			continue
		}
		for _, g := range webglTable[family] {
			if g.vendor == fp.WebGL.UnmaskedVendor && g.renderer == fp.WebGL.UnmaskedRenderer {
				return true
			}
		}
	}
	return false
}

// HashFingerprint computes the 16-hex-digit uniqueness digest:
// sha256(userAgent|WxH|unmaskedRenderer|noiseR(%.6f)|timezone)[:16].
func HashFingerprint(fp *model.Fingerprint) string {
	data := fmt.Sprintf("%s|%dx%d|%s|%.6f|%s",
		fp.Navigator.UserAgent, fp.Screen.Width, fp.Screen.Height,
		fp.WebGL.UnmaskedRenderer, fp.Canvas.NoiseR, fp.Timezone.ID)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

func build(rng *mrand.Rand, family model.PlatformFamily) *model.Fingerprint {
	info := platformTable[family]
	chromeVer := chromeVersions[rng.IntN(len(chromeVersions))]
	ua := info.chromeUA(chromeVer)

	lang := languages[rng.IntN(len(languages))]
	screenW, screenH := pickScreen(rng)
	gpu := pickGPU(rng, family)
	fonts := pickFonts(rng, family)
	tz := pickTimezone(rng)

	fp := &model.Fingerprint{
		ID: randomHex(rng, 16),
		Navigator: model.Navigator{
			UserAgent:           ua,
			Platform:            info.navigatorPlatform,
			Language:            lang.primary,
			Languages:           lang.list,
			HardwareConcurrency: hardwareConcurrencyTable[rng.IntN(len(hardwareConcurrencyTable))],
			DeviceMemory:        deviceMemoryTable[rng.IntN(len(deviceMemoryTable))],
			MaxTouchPoints:      0,
			Vendor:              info.vendor,
			AppVersion:          ua[len("Mozilla/"):],
			Webdriver:           false,
		},
		Screen: model.Screen{
			Width:            screenW,
			Height:           screenH,
			AvailWidth:       screenW,
			AvailHeight:      screenH - 40,
			ColorDepth:       colorDepthTable[rng.IntN(len(colorDepthTable))],
			DevicePixelRatio: devicePixelRatioTable[rng.IntN(len(devicePixelRatioTable))],
		},
		WebGL: model.WebGL{
			Vendor:           "Google Inc.",
			Renderer:         "ANGLE",
			UnmaskedVendor:   gpu.vendor,
			UnmaskedRenderer: gpu.renderer,
		},
		Canvas: model.Canvas{
			NoiseR: symmetricFloat(rng, 0.01),
			NoiseG: symmetricFloat(rng, 0.01),
			NoiseB: symmetricFloat(rng, 0.01),
			NoiseA: symmetricFloat(rng, 0.001),
		},
		Audio: model.Audio{
			SampleRate:  audioSampleRates[rng.IntN(len(audioSampleRates))],
			NoiseFactor: 1e-5 + rng.Float64()*(1e-3-1e-5),
		},
		Timezone: tz,
		Fonts:    fonts,
		Plugins:  append([]string(nil), pluginsClosedList...),
	}
	fp.Hash = HashFingerprint(fp)
	return fp
}

func pickPlatformFamily(rng *mrand.Rand) model.PlatformFamily {
	total := 0
	for _, pw := range platformWeights {
		total += pw.weight
	}
	r := rng.IntN(total)
	cum := 0
	for _, pw := range platformWeights {
		cum += pw.weight
		if r < cum {
			return pw.family
		}
	}
	return platformWeights[len(platformWeights)-1].family
}

func pickScreen(rng *mrand.Rand) (int, int) {
	total := 0
	for _, s := range screenResolutions {
		total += s.weight
	}
	r := rng.IntN(total)
	cum := 0
	for _, s := range screenResolutions {
		cum += s.weight
		if r < cum {
			return s.w, s.h
		}
	}
	last := screenResolutions[len(screenResolutions)-1]
	return last.w, last.h
}

func pickGPU(rng *mrand.Rand, family model.PlatformFamily) gpuEntry {
	list := webglTable[family]
	if len(list) == 0 {
		list = webglTable[model.FamilyWin32]
	}
	return list[rng.IntN(len(list))]
}

func pickTimezone(rng *mrand.Rand) model.Timezone {
	total := 0
	for _, t := range timezones {
		total += t.weight
	}
	r := rng.IntN(total)
	cum := 0
	for _, t := range timezones {
		cum += t.weight
		if r < cum {
			return model.Timezone{ID: t.id, OffsetMinutes: t.offset}
		}
	}
	last := timezones[len(timezones)-1]
	return model.Timezone{ID: last.id, OffsetMinutes: last.offset}
}

// pickFonts samples round(|table| * U(0.7,0.95)) fonts without replacement.
func pickFonts(rng *mrand.Rand, family model.PlatformFamily) []string {
	table := fontsByFamily[family]
	if len(table) == 0 {
		table = fontsByFamily[model.FamilyWin32]
	}
	frac := 0.7 + rng.Float64()*0.25
	n := int(float64(len(table))*frac + 0.5)
	if n < 1 {
		n = 1
	}
	if n > len(table) {
		n = len(table)
	}

	pool := append([]string(nil), table...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	out := append([]string(nil), pool[:n]...)
	return out
}

func symmetricFloat(rng *mrand.Rand, bound float64) float64 {
	return (rng.Float64()*2 - 1) * bound
}

func randomSeedHex() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("fingerprint: read random seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// rngFromSeed derives a math/rand/v2 ChaCha8 source from an arbitrary-length
// hex seed string so the same seed always produces the same draw sequence.
func rngFromSeed(seed string) *mrand.Rand {
	sum := sha256.Sum256([]byte(seed))
	var seed32 [32]byte
	copy(seed32[:], sum[:])
	return mrand.New(mrand.NewChaCha8(seed32))
}

func randomHex(rng *mrand.Rand, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(rng.IntN(256))
	}
	return hex.EncodeToString(buf)
}

func contains(table []int, v int) bool {
	for _, x := range table {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt(table []int, v int) bool { return contains(table, v) }

func containsFloat(table []float64, v float64) bool {
	for _, x := range table {
		if x == v {
			return true
		}
	}
	return false
}
