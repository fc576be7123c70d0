package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Calendar CalendarConfig `toml:"calendar"`
	Home     HomeConfig     `toml:"home"`
	Schedule ScheduleConfig `toml:"schedule"`
	Travel   TravelConfig   `toml:"travel"`
	Geocode  GeocodeConfig  `toml:"geocode"`
	Report   ReportConfig   `toml:"report"`
}

type CalendarConfig struct {
	Source         string `toml:"source"` // ICS URL or file path
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type HomeConfig struct {
	Label   string `toml:"label"`
	Address string `toml:"address"`
}

type ScheduleConfig struct {
	DayStart      string `toml:"day_start"` // "07:30"
	DayEnd        string `toml:"day_end"`   // "16:30"
	BufferMinutes int    `toml:"buffer_minutes"`
	HorizonDays   int    `toml:"horizon_days"`
	SkipWeekends  bool   `toml:"skip_weekends"`
}

type TravelConfig struct {
	DistanceMatrixKey string  `toml:"distancematrix_key"`
	Margin            float64 `toml:"margin"`
	BufferMinutes     int     `toml:"buffer_minutes"`
	AvgSpeedKmh       float64 `toml:"avg_speed_kmh"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

type GeocodeConfig struct {
	DistanceMatrixKey string            `toml:"distancematrix_key"`
	Country           string            `toml:"country"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	Overrides         map[string]string `toml:"overrides"`
}

type ReportConfig struct {
	TopResellers int          `toml:"top_resellers"`
	VisitMinutes int          `toml:"visit_minutes"`
	Bands        []BandConfig `toml:"bands"`
	Thresholds   Thresholds   `toml:"thresholds"`
}

type BandConfig struct {
	Label string `toml:"label"`
	Start string `toml:"start"` // "09:00"
	End   string `toml:"end"`   // "11:00"
}

// Thresholds are the historical "day is full" business rules, kept as
// configuration rather than re-derived semantics.
type Thresholds struct {
	MaxTrainings   int `toml:"max_trainings"`
	MaxDemos       int `toml:"max_demos"`
	ComboDemos     int `toml:"combo_demos"`
	ComboTrainings int `toml:"combo_trainings"`
}

func DefaultConfig() Config {
	return Config{
		Calendar: CalendarConfig{
			TimeoutSeconds: 10,
		},
		Schedule: ScheduleConfig{
			DayStart:      "07:30",
			DayEnd:        "16:30",
			BufferMinutes: 15,
			HorizonDays:   5,
			SkipWeekends:  true,
		},
		Travel: TravelConfig{
			Margin:         1.15,
			BufferMinutes:  5,
			AvgSpeedKmh:    65,
			TimeoutSeconds: 8,
		},
		Geocode: GeocodeConfig{
			Country:        "Belgique",
			TimeoutSeconds: 8,
		},
		Report: ReportConfig{
			TopResellers: 3,
			VisitMinutes: 60,
			Bands: []BandConfig{
				{Label: "morning admin", Start: "09:00", End: "11:00"},
				{Label: "afternoon admin", Start: "13:30", End: "16:00"},
			},
			Thresholds: Thresholds{
				MaxTrainings:   4,
				MaxDemos:       2,
				ComboDemos:     1,
				ComboTrainings: 2,
			},
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "slotplanner"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLOTPLANNER_DM_KEY"); v != "" {
		cfg.Travel.DistanceMatrixKey = v
		cfg.Geocode.DistanceMatrixKey = v
	}
	if v := os.Getenv("SLOTPLANNER_ICS_URL"); v != "" {
		cfg.Calendar.Source = v
	}
	if v := os.Getenv("SLOTPLANNER_HOME_ADDRESS"); v != "" {
		cfg.Home.Address = v
	}
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ParseClock converts an "HH:MM" string to an offset from local midnight.
func ParseClock(v string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", v)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed clock value %q", v)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
