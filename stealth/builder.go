// Package stealth builds the document-start JavaScript bootstrap that makes a
// launched browser's observable surface match a generated fingerprint.
//
// The script is assembled as an ordered sequence of small, independent
// patches - one per surface (navigator, screen, WebGL, canvas, audio,
// timezone, plugins, WebRTC, chrome runtime, iframes, headless tells) -
// preceded by a toString side-table patch that makes every overridden
// function report back as native code under Function.prototype.toString.
// Each patch is a self-contained IIFE so a driver can inject the whole
// bundle as one document-start script.
package stealth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firasghr/goantidetect/model"
)

// fingerprintJSON is the subset of model.Fingerprint exposed to the page as
// the JS-side "config" object. Field names are chosen to match what the
// patches below read (config.navigator.*, config.screen.*, ...).
type fingerprintJSON struct {
	Navigator struct {
		UserAgent           string   `json:"userAgent"`
		Platform            string   `json:"platform"`
		Language            string   `json:"language"`
		Languages           []string `json:"languages"`
		HardwareConcurrency int      `json:"hardwareConcurrency"`
		DeviceMemory        int      `json:"deviceMemory"`
		MaxTouchPoints      int      `json:"maxTouchPoints"`
		Vendor              string   `json:"vendor"`
	} `json:"navigator"`
	Screen struct {
		Width       int `json:"width"`
		Height      int `json:"height"`
		AvailWidth  int `json:"availWidth"`
		AvailHeight int `json:"availHeight"`
		ColorDepth  int `json:"colorDepth"`
		PixelDepth  int `json:"pixelDepth"`
	} `json:"screen"`
	WebGL struct {
		Vendor           string `json:"vendor"`
		Renderer         string `json:"renderer"`
		UnmaskedVendor   string `json:"unmaskedVendor"`
		UnmaskedRenderer string `json:"unmaskedRenderer"`
	} `json:"webgl"`
	Canvas struct {
		NoiseR float64 `json:"noiseR"`
		NoiseG float64 `json:"noiseG"`
		NoiseB float64 `json:"noiseB"`
	} `json:"canvas"`
	Audio struct {
		NoiseFactor float64 `json:"noiseFactor"`
	} `json:"audio"`
}

func toFingerprintJSON(fp *model.Fingerprint) fingerprintJSON {
	var cfg fingerprintJSON
	cfg.Navigator.UserAgent = fp.Navigator.UserAgent
	cfg.Navigator.Platform = fp.Navigator.Platform
	cfg.Navigator.Language = fp.Navigator.Language
	cfg.Navigator.Languages = fp.Navigator.Languages
	cfg.Navigator.HardwareConcurrency = fp.Navigator.HardwareConcurrency
	cfg.Navigator.DeviceMemory = fp.Navigator.DeviceMemory
	cfg.Navigator.MaxTouchPoints = fp.Navigator.MaxTouchPoints
	cfg.Navigator.Vendor = fp.Navigator.Vendor
	cfg.Screen.Width = fp.Screen.Width
	cfg.Screen.Height = fp.Screen.Height
	cfg.Screen.AvailWidth = fp.Screen.AvailWidth
	cfg.Screen.AvailHeight = fp.Screen.AvailHeight
	cfg.Screen.ColorDepth = fp.Screen.ColorDepth
	cfg.Screen.PixelDepth = fp.Screen.ColorDepth
	cfg.WebGL.Vendor = fp.WebGL.Vendor
	cfg.WebGL.Renderer = fp.WebGL.Renderer
	cfg.WebGL.UnmaskedVendor = fp.WebGL.UnmaskedVendor
	cfg.WebGL.UnmaskedRenderer = fp.WebGL.UnmaskedRenderer
	cfg.Canvas.NoiseR = fp.Canvas.NoiseR
	cfg.Canvas.NoiseG = fp.Canvas.NoiseG
	cfg.Canvas.NoiseB = fp.Canvas.NoiseB
	cfg.Audio.NoiseFactor = fp.Audio.NoiseFactor
	return cfg
}

// Build assembles the complete document-start bootstrap script for fp. The
// returned string is safe to inject once per page navigation, before any
// page script runs.
func Build(fp *model.Fingerprint) (string, error) {
	cfg := toFingerprintJSON(fp)
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("stealth: marshal fingerprint config: %w", err)
	}
	pluginsJSON, err := json.Marshal(fp.Plugins)
	if err != nil {
		return "", fmt.Errorf("stealth: marshal plugins: %w", err)
	}
	tzJSON, err := json.Marshal(fp.Timezone.ID)
	if err != nil {
		return "", fmt.Errorf("stealth: marshal timezone: %w", err)
	}

	patches := []string{
		NativeTableScript,
		webdriverPatch,
		navigatorPatch(string(cfgJSON)),
		webglPatch(string(cfgJSON)),
		canvasPatch(string(cfgJSON)),
		audioPatch(string(cfgJSON)),
		timezonePatch(string(tzJSON)),
		clientRectsPatch,
		pluginsPatch(string(pluginsJSON)),
		webrtcPatch,
		chromeRuntimePatch,
		iframePatch,
		headlessPatch,
	}
	return strings.Join(patches, "\n"), nil
}

// NativeTableScript installs the Function.prototype.toString side table that
// every later patch registers its replacement functions into via
// __nativeize(fn, name). A function not in the table falls through to the
// real original toString, so unpatched functions are unaffected.
const NativeTableScript = `
(() => {
    const __patchedFns = [];
    const __patchedNames = [];
    const __originalToString = Function.prototype.toString;

    window.__nativeize = function(fn, name) {
        __patchedFns.push(fn);
        __patchedNames.push(name);
        return fn;
    };

    Function.prototype.toString = function() {
        const idx = __patchedFns.indexOf(this);
        if (idx !== -1) {
            return 'function ' + __patchedNames[idx] + '() { [native code] }';
        }
        return __originalToString.call(this);
    };
    window.__nativeize(Function.prototype.toString, 'toString');
})();
`

const webdriverPatch = `
(() => {
    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    delete navigator.__proto__.webdriver;

    const originalQuery = window.navigator.permissions.query;
    const patchedQuery = (parameters) => (
        parameters.name === 'notifications' ?
            Promise.resolve({ state: Notification.permission }) :
            originalQuery(parameters)
    );
    window.navigator.permissions.query = window.__nativeize(patchedQuery, 'query');

    const automationNamePattern = /^(\$?cdc_|__webdriver_|__selenium_)/;
    for (const scope of [window, document]) {
        for (const key of Object.keys(scope)) {
            if (automationNamePattern.test(key)) {
                try { delete scope[key]; } catch (e) {}
            }
        }
    }
    delete window.__webdriver_evaluate;
    delete window.__selenium_evaluate;
    delete window.__webdriver_script_function;
    delete window.__webdriver_script_func;
    delete window.__webdriver_script_fn;
    delete window.__fxdriver_evaluate;
    delete window.__driver_unwrapped;
    delete window.__webdriver_unwrapped;
    delete window.__driver_evaluate;
    delete window.__selenium_unwrapped;
    delete window.__fxdriver_unwrapped;
})();
`

func navigatorPatch(cfgJSON string) string {
	return fmt.Sprintf(`
(() => {
    const config = %s;

    Object.defineProperties(navigator, {
        userAgent: { get: () => config.navigator.userAgent },
        platform: { get: () => config.navigator.platform },
        language: { get: () => config.navigator.language },
        languages: { get: () => Object.freeze(config.navigator.languages) },
        hardwareConcurrency: { get: () => config.navigator.hardwareConcurrency },
        deviceMemory: { get: () => config.navigator.deviceMemory },
        maxTouchPoints: { get: () => config.navigator.maxTouchPoints },
        vendor: { get: () => config.navigator.vendor },
    });

    Object.defineProperties(screen, {
        width: { get: () => config.screen.width },
        height: { get: () => config.screen.height },
        availWidth: { get: () => config.screen.availWidth },
        availHeight: { get: () => config.screen.availHeight },
        colorDepth: { get: () => config.screen.colorDepth },
        pixelDepth: { get: () => config.screen.pixelDepth },
    });

    Object.defineProperties(window, {
        innerWidth: { get: () => config.screen.width },
        innerHeight: { get: () => config.screen.height - 100 },
        outerWidth: { get: () => config.screen.width },
        outerHeight: { get: () => config.screen.height },
    });
})();
`, cfgJSON)
}

// WebGLParamScript is the pure mapping from a WEBGL_debug_renderer_info
// pname constant to the spoofed value. Extracted as its own function (rather
// than inlined in the JS string) so builder_test.go can exercise the same
// logic via otto without needing a real WebGL context.
const WebGLParamScript = `
function __webglParam(config, pname, original) {
    if (pname === 37445) { return config.webgl.unmaskedVendor; }
    if (pname === 37446) { return config.webgl.unmaskedRenderer; }
    if (pname === 7936) { return config.webgl.vendor; }
    if (pname === 7937) { return config.webgl.renderer; }
    return original;
}
`

func webglPatch(cfgJSON string) string {
	return WebGLParamScript + fmt.Sprintf(`
(() => {
    const config = %s;

    const originalGetContext = HTMLCanvasElement.prototype.getContext;
    const patchedGetContext = function(type, ...args) {
        const context = originalGetContext.apply(this, [type, ...args]);

        if (context && (type === 'webgl' || type === 'webgl2' || type === 'experimental-webgl')) {
            const originalGetParameter = context.getParameter.bind(context);
            const patchedGetParameter = function(pname) {
                return __webglParam(config, pname, originalGetParameter(pname));
            };
            context.getParameter = window.__nativeize(patchedGetParameter, 'getParameter');
        }

        return context;
    };
    HTMLCanvasElement.prototype.getContext = window.__nativeize(patchedGetContext, 'getContext');
})();
`, cfgJSON)
}

// CanvasNoiseScript clamps a single 0-255 channel value after adding the
// configured noise coefficient, scaled to byte range. Extracted for the same
// reason as WebGLParamScript: a unit-testable pure function.
const CanvasNoiseScript = `
function __canvasNoise(value, noiseCoefficient) {
    var shifted = value + Math.round(noiseCoefficient * 255);
    return Math.max(0, Math.min(255, shifted));
}
`

func canvasPatch(cfgJSON string) string {
	return CanvasNoiseScript + fmt.Sprintf(`
(() => {
    const config = %s;

    const originalGetImageData = CanvasRenderingContext2D.prototype.getImageData;
    const patchedGetImageData = function(...args) {
        const imageData = originalGetImageData.apply(this, args);

        for (let i = 0; i < imageData.data.length; i += 4) {
            imageData.data[i] = __canvasNoise(imageData.data[i], config.canvas.noiseR);
            imageData.data[i + 1] = __canvasNoise(imageData.data[i + 1], config.canvas.noiseG);
            imageData.data[i + 2] = __canvasNoise(imageData.data[i + 2], config.canvas.noiseB);
        }

        return imageData;
    };
    CanvasRenderingContext2D.prototype.getImageData = window.__nativeize(patchedGetImageData, 'getImageData');

    const originalToDataURL = HTMLCanvasElement.prototype.toDataURL;
    const patchedToDataURL = function(...args) {
        const ctx = this.getContext('2d');
        if (ctx) {
            const imageData = ctx.getImageData(0, 0, this.width, this.height);
            ctx.putImageData(imageData, 0, 0);
        }
        return originalToDataURL.apply(this, args);
    };
    HTMLCanvasElement.prototype.toDataURL = window.__nativeize(patchedToDataURL, 'toDataURL');

    const originalToBlob = HTMLCanvasElement.prototype.toBlob;
    const patchedToBlob = function(callback, ...args) {
        const ctx = this.getContext('2d');
        if (ctx) {
            const imageData = ctx.getImageData(0, 0, this.width, this.height);
            ctx.putImageData(imageData, 0, 0);
        }
        return originalToBlob.apply(this, [callback, ...args]);
    };
    HTMLCanvasElement.prototype.toBlob = window.__nativeize(patchedToBlob, 'toBlob');
})();
`, cfgJSON)
}

func audioPatch(cfgJSON string) string {
	return fmt.Sprintf(`
(() => {
    const config = %s;

    const originalCreateAnalyser = AudioContext.prototype.createAnalyser;
    const patchedCreateAnalyser = function() {
        const analyser = originalCreateAnalyser.apply(this, arguments);

        const originalGetFloatFrequencyData = analyser.getFloatFrequencyData;
        analyser.getFloatFrequencyData = function(array) {
            originalGetFloatFrequencyData.apply(this, [array]);
            for (let i = 0; i < array.length; i++) {
                array[i] = array[i] + config.audio.noiseFactor * (Math.random() - 0.5);
            }
        };

        return analyser;
    };
    AudioContext.prototype.createAnalyser = window.__nativeize(patchedCreateAnalyser, 'createAnalyser');

    if (typeof OfflineAudioContext !== 'undefined') {
        const originalStartRendering = OfflineAudioContext.prototype.startRendering;
        OfflineAudioContext.prototype.startRendering = function() {
            return originalStartRendering.apply(this).then(buffer => {
                const output = buffer.getChannelData(0);
                for (let i = 0; i < output.length; i++) {
                    output[i] = output[i] + config.audio.noiseFactor * (Math.random() - 0.5);
                }
                return buffer;
            });
        };
    }
})();
`, cfgJSON)
}

// TimezoneOffsetScript defines __timezoneOffset, the pure IANA-zone ->
// getTimezoneOffset() minutes lookup, kept as a standalone function for the
// same testability reason as
// the webgl/canvas helpers above.
const TimezoneOffsetScript = `
function __timezoneOffset(timezone) {
    const offsets = {
        'America/New_York': 300,
        'America/Los_Angeles': 480,
        'America/Chicago': 360,
        'America/Denver': 420,
        'Europe/London': 0,
        'Europe/Berlin': -60,
        'Europe/Paris': -60,
        'Europe/Moscow': -180,
        'Asia/Tokyo': -540,
        'Asia/Shanghai': -480,
        'Asia/Kolkata': -330,
        'Australia/Sydney': -660,
        'America/Sao_Paulo': 180,
    };
    return offsets[timezone] || 0;
}
`

func timezonePatch(tzJSON string) string {
	return TimezoneOffsetScript + fmt.Sprintf(`
(() => {
    const timezone = %s;
    const targetOffset = __timezoneOffset(timezone);

    const originalDateTimeFormat = Intl.DateTimeFormat;
    const patchedDateTimeFormat = function(locales, options) {
        options = options || {};
        options.timeZone = timezone;
        return new originalDateTimeFormat(locales, options);
    };
    Intl.DateTimeFormat = window.__nativeize(patchedDateTimeFormat, 'DateTimeFormat');
    Object.setPrototypeOf(Intl.DateTimeFormat, originalDateTimeFormat);

    Date.prototype.getTimezoneOffset = window.__nativeize(function() {
        return targetOffset;
    }, 'getTimezoneOffset');
})();
`, tzJSON)
}

const clientRectsPatch = `
(() => {
    const originalGetBoundingClientRect = Element.prototype.getBoundingClientRect;
    const patchedGetBoundingClientRect = function() {
        const rect = originalGetBoundingClientRect.apply(this);
        const noise = 0.00001;

        return new DOMRect(
            rect.x + noise * Math.random(),
            rect.y + noise * Math.random(),
            rect.width + noise * Math.random(),
            rect.height + noise * Math.random()
        );
    };
    Element.prototype.getBoundingClientRect = window.__nativeize(patchedGetBoundingClientRect, 'getBoundingClientRect');
})();
`

func pluginsPatch(pluginsJSON string) string {
	return fmt.Sprintf(`
(() => {
    const pluginNames = %s;

    const fakePlugins = pluginNames.map((name) => ({
        name: name,
        description: name,
        filename: name.toLowerCase().replace(/ /g, '_') + '.dll',
        length: 1,
        item: () => null,
        namedItem: () => null,
    }));

    const patchedPlugins = () => {
        const arr = Object.create(PluginArray.prototype);
        fakePlugins.forEach((p, i) => { arr[i] = p; });
        arr.length = fakePlugins.length;
        arr.item = (i) => arr[i];
        arr.namedItem = (name) => fakePlugins.find(p => p.name === name);
        arr.refresh = () => {};
        return arr;
    };

    Object.defineProperty(navigator, 'plugins', { get: patchedPlugins });
})();
`, pluginsJSON)
}

const webrtcPatch = `
(() => {
    if (typeof RTCPeerConnection === 'undefined') { return; }
    const originalRTCPeerConnection = RTCPeerConnection;

    const patchedRTCPeerConnection = function(...args) {
        const config = args[0] || {};
        config.iceServers = config.iceServers || [];
        config.iceCandidatePoolSize = 0;

        const pc = new originalRTCPeerConnection(config);

        const originalAddIceCandidate = pc.addIceCandidate.bind(pc);
        pc.addIceCandidate = function(candidate) {
            if (candidate && candidate.candidate && candidate.candidate.includes('typ host')) {
                return Promise.resolve();
            }
            return originalAddIceCandidate(candidate);
        };

        return pc;
    };
    patchedRTCPeerConnection.prototype = originalRTCPeerConnection.prototype;
    window.RTCPeerConnection = window.__nativeize(patchedRTCPeerConnection, 'RTCPeerConnection');
})();
`

const chromeRuntimePatch = `
(() => {
    window.chrome = window.chrome || {};
    window.chrome.runtime = window.chrome.runtime || {};

    window.chrome.runtime.connect = function() {
        return { onMessage: { addListener: function() {} }, postMessage: function() {} };
    };
    window.chrome.runtime.sendMessage = function() {};

    window.chrome.csi = function() {
        return { startE: Date.now(), onloadT: Date.now(), pageT: Date.now(), tran: 15 };
    };

    window.chrome.loadTimes = function() {
        return {
            commitLoadTime: Date.now() / 1000,
            connectionInfo: 'h2',
            finishDocumentLoadTime: Date.now() / 1000,
            finishLoadTime: Date.now() / 1000,
            firstPaintAfterLoadTime: 0,
            firstPaintTime: Date.now() / 1000,
            navigationType: 'Other',
            npnNegotiatedProtocol: 'h2',
            requestTime: Date.now() / 1000,
            startLoadTime: Date.now() / 1000,
            wasAlternateProtocolAvailable: false,
            wasFetchedViaSpdy: true,
            wasNpnNegotiated: true
        };
    };
})();
`

const iframePatch = `
(() => {
    const originalContentWindow = Object.getOwnPropertyDescriptor(HTMLIFrameElement.prototype, 'contentWindow');

    Object.defineProperty(HTMLIFrameElement.prototype, 'contentWindow', {
        get: function() {
            const win = originalContentWindow.get.call(this);
            if (win) {
                try {
                    Object.defineProperty(win.navigator, 'webdriver', { get: () => undefined });
                } catch (e) {}
            }
            return win;
        }
    });
})();
`

const headlessPatch = `
(() => {
    if (!navigator.connection) {
        Object.defineProperty(navigator, 'connection', {
            get: () => ({ effectiveType: '4g', rtt: 50, downlink: 10, saveData: false, onchange: null })
        });
    }

    if (window.outerWidth === 0) {
        Object.defineProperty(window, 'outerWidth', { get: () => window.innerWidth });
    }
    if (window.outerHeight === 0) {
        Object.defineProperty(window, 'outerHeight', { get: () => window.innerHeight + 100 });
    }

    if (Notification.permission === 'denied') {
        Object.defineProperty(Notification, 'permission', { get: () => 'default' });
    }
})();
`
