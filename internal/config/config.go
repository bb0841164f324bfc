package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Capture     CaptureConfig     `yaml:"capture"`
	Web         WebConfig         `yaml:"web"`
}

type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	FacesDir   string `yaml:"faces_dir"`   // person buckets, relative paths resolve under DataDir
	ModelPath  string `yaml:"model_path"`  // trained recognizer
	LedgerPath string `yaml:"ledger_path"` // attendance CSV
}

type EnrollmentConfig struct {
	Quota      int           `yaml:"quota"`
	Interval   time.Duration `yaml:"interval"`
	SampleSize int           `yaml:"sample_size"`
}

type RecognitionConfig struct {
	Threshold float64 `yaml:"threshold"` // distance below which a face is identified
	Backend   string  `yaml:"backend"`   // lbph (pure Go) or opencv
}

type CaptureConfig struct {
	Camera      string        `yaml:"camera"`
	Detector    string        `yaml:"detector"`
	PigoCascade string        `yaml:"pigo_cascade"`
	HaarCascade string        `yaml:"haar_cascade"`
	FrameDelay  time.Duration `yaml:"frame_delay"`
}

type WebConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// AllowedOrigins receive CORS headers in addition to localhost.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CameraKind selects the frame source implementation.
type CameraKind string

const (
	CameraDevice    CameraKind = "device"
	CameraDirectory CameraKind = "dir"
)

// CameraSpec is a parsed CAMERA value.
type CameraSpec struct {
	Kind   CameraKind
	Device int    // for CameraDevice, negative probes
	Dir    string // for CameraDirectory
}

// ParseCamera parses "device:<n>" or "dir:<path>". A bare number is a device index.
func ParseCamera(s string) (CameraSpec, error) {
	kind, arg, ok := strings.Cut(s, ":")
	if !ok {
		kind, arg = string(CameraDevice), s
	}
	switch CameraKind(kind) {
	case CameraDevice:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return CameraSpec{}, fmt.Errorf("invalid camera device %q", arg)
		}
		return CameraSpec{Kind: CameraDevice, Device: n}, nil
	case CameraDirectory:
		if arg == "" {
			return CameraSpec{}, fmt.Errorf("camera directory is empty")
		}
		return CameraSpec{Kind: CameraDirectory, Dir: arg}, nil
	default:
		return CameraSpec{}, fmt.Errorf("unknown camera kind %q (want device or dir)", kind)
	}
}

// ResolvedFacesDir returns the resolved person bucket root.
func (c *StorageConfig) ResolvedFacesDir() string { return c.resolve(c.FacesDir) }

// ResolvedModelPath returns the resolved model file path.
func (c *StorageConfig) ResolvedModelPath() string { return c.resolve(c.ModelPath) }

// ResolvedLedgerPath returns the resolved ledger file path.
func (c *StorageConfig) ResolvedLedgerPath() string { return c.resolve(c.LedgerPath) }

func (c *StorageConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Addr returns the web listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a non-negative Go duration ("300ms"), falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// envPositiveDuration is envDuration for intervals that drive a ticker, where zero
// is not a usable value.
func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	if d := envDuration(key, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list, dropping blank items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d Config
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Storage: StorageConfig{
			DataDir:    envString("DATA_DIR", d.Storage.DataDir),
			FacesDir:   envString("FACES_DIR", d.Storage.FacesDir),
			ModelPath:  envString("MODEL_PATH", d.Storage.ModelPath),
			LedgerPath: envString("LEDGER_PATH", d.Storage.LedgerPath),
		},
		Enrollment: EnrollmentConfig{
			Quota:      envInt("ENROLL_QUOTA", d.Enrollment.Quota),
			Interval:   envDuration("ENROLL_INTERVAL", d.Enrollment.Interval),
			SampleSize: envInt("SAMPLE_SIZE", d.Enrollment.SampleSize),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("RECOGNITION_THRESHOLD", d.Recognition.Threshold),
			Backend:   envString("RECOGNIZER", d.Recognition.Backend),
		},
		Capture: CaptureConfig{
			Camera:      envString("CAMERA", d.Capture.Camera),
			Detector:    envString("DETECTOR", d.Capture.Detector),
			PigoCascade: envString("PIGO_CASCADE", d.Capture.PigoCascade),
			HaarCascade: envString("HAAR_CASCADE", d.Capture.HaarCascade),
			FrameDelay:  envDuration("FRAME_DELAY", d.Capture.FrameDelay),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			PollInterval:   envPositiveDuration("POLL_INTERVAL", d.Web.PollInterval),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
	}
}
