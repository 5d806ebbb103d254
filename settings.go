package nakamoto

import (
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Settings holds the process-wide numeric defaults. Rules read them when a
// parameter is not given explicitly, transitions read the commission.
type Settings struct {
	Commission             float64
	SellingMarginThreshold float64
	BuyingMarginThreshold  float64
	HoldPercent            float64
	DataFolder             string
	Debug                  bool
}

var (
	// DefaultSettings are used by rule constructors and rule transitions.
	// Replace them once at startup with SetDefaultSettings.
	DefaultSettings = Settings{
		Commission:             0.001,
		SellingMarginThreshold: 0.02,
		BuyingMarginThreshold:  0.02,
		HoldPercent:            0.5,
		DataFolder:             "./data",
	}
)

const (
	envCommission             = "NAKAMOTO_COMMISSION"
	envSellingMarginThreshold = "NAKAMOTO_SELLING_MARGIN_THRESHOLD"
	envBuyingMarginThreshold  = "NAKAMOTO_BUYING_MARGIN_THRESHOLD"
	envHoldPercent            = "NAKAMOTO_HOLD_PERCENT"
	envDataFolder             = "NAKAMOTO_DATA_FOLDER"
	envDebug                  = "NAKAMOTO_DEBUG"
)

// SetDefaultSettings replaces the process-wide defaults.
func SetDefaultSettings(s Settings) {
	DefaultSettings = s
}

// LoadSettings loads the given .env files (".env" if none is given) into the
// environment and reads the NAKAMOTO_* variables on top of the defaults.
// Files that do not exist are skipped.
func LoadSettings(files ...string) (Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Settings{}, errors.Wrapf(err, "loading env file %s", f)
		}
	}

	s := DefaultSettings
	var err error
	if s.Commission, err = floatFromEnv(envCommission, s.Commission); err != nil {
		return Settings{}, err
	}
	if s.SellingMarginThreshold, err = floatFromEnv(envSellingMarginThreshold, s.SellingMarginThreshold); err != nil {
		return Settings{}, err
	}
	if s.BuyingMarginThreshold, err = floatFromEnv(envBuyingMarginThreshold, s.BuyingMarginThreshold); err != nil {
		return Settings{}, err
	}
	if s.HoldPercent, err = floatFromEnv(envHoldPercent, s.HoldPercent); err != nil {
		return Settings{}, err
	}
	if v, found := os.LookupEnv(envDataFolder); found && v != "" {
		s.DataFolder = v
	}
	if v, found := os.LookupEnv(envDebug); found {
		debug, perr := strconv.ParseBool(v)
		if perr != nil {
			return Settings{}, validationErrorf(v, "%s is not a boolean", envDebug)
		}
		s.Debug = debug
	}

	return s, s.Validate()
}

// Validate checks the ranges of the numeric settings.
func (s Settings) Validate() error {
	if !(s.Commission >= 0) || math.IsInf(s.Commission, 0) {
		return validationErrorf(s, "commission %v is not a finite value >= 0", s.Commission)
	}
	if !(s.HoldPercent >= 0 && s.HoldPercent < 1) {
		return validationErrorf(s, "hold percent %v out of [0, 1)", s.HoldPercent)
	}
	for _, threshold := range []float64{s.SellingMarginThreshold, s.BuyingMarginThreshold} {
		if !(threshold > 0) || math.IsInf(threshold, 0) {
			return validationErrorf(s, "margin thresholds must be finite and > 0")
		}
	}
	return nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v, found := os.LookupEnv(key)
	if !found || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, validationErrorf(v, "%s is not a finite number", key)
	}
	return f, nil
}
