package stealth_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/robertkrimen/otto"

	"github.com/firasghr/goantidetect/fingerprint"
	"github.com/firasghr/goantidetect/stealth"
)

// A real DOM is unavailable in a unit test, so these tests evaluate the
// pure-JS helper functions extracted from the generated script (the
// toString side table, the WebGL parameter map, the canvas noise clamp, and
// the timezone offset table) with otto, the same pure-Go JS interpreter the
// jschallenge package uses to solve target-site challenges.

func TestBuild_ProducesNonEmptyScript(t *testing.T) {
	fp, err := fingerprint.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	script, err := stealth.Build(fp)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if script == "" {
		t.Fatal("Build returned an empty script")
	}
	if !strings.Contains(script, fp.Navigator.UserAgent) {
		t.Error("script does not embed the fingerprint's user agent")
	}
}

func TestBuild_NullsAutomationGlobals(t *testing.T) {
	fp, err := fingerprint.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	script, err := stealth.Build(fp)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, marker := range []string{"__webdriver_evaluate", "__selenium_evaluate", "cdc_", "__driver_evaluate"} {
		if !strings.Contains(script, marker) {
			t.Errorf("script does not reference automation marker %q", marker)
		}
	}
}

func TestNativeTableScript_HidesPatchedFunctions(t *testing.T) {
	vm := otto.New()
	if _, err := vm.Run(stealth.NativeTableScript); err != nil {
		t.Fatalf("run NativeTableScript: %v", err)
	}

	script := `
		var real = function unpatched() { return 1; };
		var fake = function() { return 2; };
		window.__nativeize(fake, 'getParameter');
		[real.toString(), fake.toString()];
	`
	val, err := vm.Run(script)
	if err != nil {
		t.Fatalf("run test script: %v", err)
	}
	arr, _ := val.Export()
	results, ok := arr.([]interface{})
	if !ok || len(results) != 2 {
		t.Fatalf("unexpected export shape: %#v", arr)
	}

	realStr := results[0].(string)
	fakeStr := results[1].(string)

	if strings.Contains(realStr, "native code") {
		t.Error("unpatched function must keep its real toString output")
	}
	if !strings.Contains(fakeStr, "[native code]") {
		t.Errorf("patched function toString should report native code, got %q", fakeStr)
	}
	if !strings.Contains(fakeStr, "getParameter") {
		t.Errorf("patched function toString should use the registered name, got %q", fakeStr)
	}
}

func TestWebGLParamScript_MapsKnownConstants(t *testing.T) {
	vm := otto.New()
	if _, err := vm.Run(stealth.WebGLParamScript); err != nil {
		t.Fatalf("run WebGLParamScript: %v", err)
	}
	if _, err := vm.Run(`var config = {webgl: {vendor: "Google Inc.", renderer: "ANGLE", unmaskedVendor: "Apple Inc.", unmaskedRenderer: "Apple M2"}};`); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	cases := []struct {
		pname int
		want  string
	}{
		{37445, "Apple Inc."},
		{37446, "Apple M2"},
		{7936, "Google Inc."},
		{7937, "ANGLE"},
	}
	for _, c := range cases {
		val, err := vm.Run(`__webglParam(config, ` + strconv.Itoa(c.pname) + `, "ORIGINAL")`)
		if err != nil {
			t.Fatalf("__webglParam(%d): %v", c.pname, err)
		}
		got, _ := val.ToString()
		if got != c.want {
			t.Errorf("__webglParam(%d) = %q, want %q", c.pname, got, c.want)
		}
	}

	val, err := vm.Run(`__webglParam(config, 9999, "ORIGINAL")`)
	if err != nil {
		t.Fatalf("__webglParam(unknown): %v", err)
	}
	if got, _ := val.ToString(); got != "ORIGINAL" {
		t.Errorf("unmapped pname should fall through to original, got %q", got)
	}
}

func TestCanvasNoiseScript_ClampsToByteRange(t *testing.T) {
	vm := otto.New()
	if _, err := vm.Run(stealth.CanvasNoiseScript); err != nil {
		t.Fatalf("run CanvasNoiseScript: %v", err)
	}

	val, err := vm.Run(`__canvasNoise(250, 0.1)`)
	if err != nil {
		t.Fatalf("__canvasNoise high: %v", err)
	}
	if got, _ := val.ToInteger(); got != 255 {
		t.Errorf("__canvasNoise(250, 0.1) = %d, want clamp to 255", got)
	}

	val, err = vm.Run(`__canvasNoise(2, -0.1)`)
	if err != nil {
		t.Fatalf("__canvasNoise low: %v", err)
	}
	if got, _ := val.ToInteger(); got != 0 {
		t.Errorf("__canvasNoise(2, -0.1) = %d, want clamp to 0", got)
	}
}

func TestTimezoneOffsetScript_KnownAndUnknownZones(t *testing.T) {
	vm := otto.New()
	if _, err := vm.Run(stealth.TimezoneOffsetScript); err != nil {
		t.Fatalf("run TimezoneOffsetScript: %v", err)
	}

	val, err := vm.Run(`__timezoneOffset('America/New_York')`)
	if err != nil {
		t.Fatalf("__timezoneOffset: %v", err)
	}
	if got, _ := val.ToInteger(); got != 300 {
		t.Errorf("__timezoneOffset(America/New_York) = %d, want 300", got)
	}

	val, err = vm.Run(`__timezoneOffset('Antarctica/McMurdo')`)
	if err != nil {
		t.Fatalf("__timezoneOffset unknown: %v", err)
	}
	if got, _ := val.ToInteger(); got != 0 {
		t.Errorf("__timezoneOffset(unknown) = %d, want 0 fallback", got)
	}
}
