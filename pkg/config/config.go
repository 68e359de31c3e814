package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/unklstewy/intercept-sim/pkg/coordinates"
)

// ErrInvalidScenario is returned (wrapped) by ScenarioConfig.Validate.
var ErrInvalidScenario = errors.New("invalid scenario")

// Config represents the complete application configuration.
// The Scenario section is the only part the engagement engine reads; the rest
// configures the batch runner, persistence and front ends.
type Config struct {
	Scenario ScenarioConfig `json:"scenario"`
	Batch    BatchConfig    `json:"batch"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
}

// ScenarioConfig describes one engagement. It is passed by value into the
// engine and never mutated there.
type ScenarioConfig struct {
	// TimeStep is the fixed integration step in seconds (default: 0.01)
	TimeStep float64 `json:"time_step"`

	// MaxTime is the simulated time limit in seconds (default: 100)
	MaxTime float64 `json:"max_time"`

	// LaunchDelay is the simulated time before the target starts flying.
	// Interceptor launch offsets are measured from target launch.
	LaunchDelay float64 `json:"launch_delay"`

	// InterceptRadius is the miss distance in feet that counts as a hit
	InterceptRadius float64 `json:"intercept_radius"`

	// EndOnFirstHit stops the run as soon as any interceptor hits
	EndOnFirstHit bool `json:"end_on_first_hit"`

	// DivergenceTime is how long, in seconds, range must keep opening before
	// an interceptor is declared to have missed
	DivergenceTime float64 `json:"divergence_time"`

	// Recording keeps the per-step history for animation and replay.
	// Leave off for batch runs.
	Recording bool `json:"recording"`

	Target      TargetConfig      `json:"target"`
	Interceptor InterceptorConfig `json:"interceptor"`
	Salvo       SalvoConfig       `json:"salvo"`
	Guidance    GuidanceConfig    `json:"guidance"`
	PreSim      PreSimConfig      `json:"presim"`
	Selector    SelectorConfig    `json:"selector"`
	Output      OutputConfig      `json:"output"`
}

// TargetConfig contains the target airframe and its actual maneuver.
type TargetConfig struct {
	// InitialPosition in NED feet [north, east, down]
	InitialPosition mgl64.Vec3 `json:"initial_position"`

	// Speed in ft/s at target launch
	Speed float64 `json:"speed"`

	// HeadingDeg is the initial ground track in degrees from north
	HeadingDeg float64 `json:"heading_deg"`

	// FlightPathDeg is the initial climb angle in degrees (negative = descending)
	FlightPathDeg float64 `json:"flight_path_deg"`

	// Mass in slugs
	Mass float64 `json:"mass"`

	// ReferenceArea in square feet
	ReferenceArea float64 `json:"reference_area"`

	// CLAlpha is the lift curve slope per radian
	CLAlpha float64 `json:"cl_alpha"`

	// CD0 is the zero-lift drag coefficient
	CD0 float64 `json:"cd0"`

	// CDAlpha is the induced drag factor per radian squared
	CDAlpha float64 `json:"cd_alpha"`

	// MaxG limits the maneuver-induced acceleration (default: 30)
	MaxG float64 `json:"max_g"`

	// AoAMinDeg and AoAMaxDeg bound the commanded angle of attack
	AoAMinDeg float64 `json:"aoa_min_deg"`
	AoAMaxDeg float64 `json:"aoa_max_deg"`

	Maneuver ManeuverConfig `json:"maneuver"`
}

// ManeuverConfig is the maneuver the target actually flies.
type ManeuverConfig struct {
	// AoADeg is the angle of attack held once the maneuver starts (0 = ballistic)
	AoADeg float64 `json:"aoa_deg"`

	// StartTime is the target flight time in seconds at which the maneuver begins
	StartTime float64 `json:"start_time"`

	// StartAltitude, when > 0, starts the maneuver as the target descends
	// through this altitude (ft) instead of at StartTime
	StartAltitude float64 `json:"start_altitude"`
}

// InitialVelocity returns the target's launch velocity in NED.
func (t TargetConfig) InitialVelocity() mgl64.Vec3 {
	return coordinates.VelocityFromAngles(t.Speed, t.HeadingDeg, t.FlightPathDeg)
}

// InterceptorConfig contains the interceptor airframe shared by the salvo.
type InterceptorConfig struct {
	// Speed in ft/s at launch
	Speed float64 `json:"speed"`

	// Mass in slugs
	Mass float64 `json:"mass"`

	// ReferenceArea in square feet
	ReferenceArea float64 `json:"reference_area"`

	// CD0 is the drag coefficient
	CD0 float64 `json:"cd0"`

	// MaxG limits the lateral guidance acceleration (default: 50)
	MaxG float64 `json:"max_g"`

	// Drag and Gravity toggle those forces on the interceptor
	Drag    bool `json:"drag"`
	Gravity bool `json:"gravity"`
}

// SalvoConfig describes the launcher and the salvo timing.
type SalvoConfig struct {
	// LaunchPosition of the battery in NED feet
	LaunchPosition mgl64.Vec3 `json:"launch_position"`

	// LaunchOffsets are launch times in seconds after target launch, one per
	// interceptor, in salvo order
	LaunchOffsets []float64 `json:"launch_offsets"`
}

// Count returns the number of interceptors in the salvo.
func (s SalvoConfig) Count() int {
	return len(s.LaunchOffsets)
}

// GuidanceConfig contains the guidance gains and phase boundaries.
type GuidanceConfig struct {
	// NavigationGain is N for terminal proportional navigation (default: 4)
	NavigationGain float64 `json:"navigation_gain"`

	// PIPGain is the gain of the PIP-pursuit law (default: 3)
	PIPGain float64 `json:"pip_gain"`

	// TerminalRange is the range in feet below which PN is flown (default: 5 km)
	TerminalRange float64 `json:"terminal_range"`

	// MidcourseRange is the range in feet below which phase-based guidance
	// stops using the pre-calculated PIP (default: 10 km)
	MidcourseRange float64 `json:"midcourse_range"`
}

// PreSimConfig drives the three candidate target trajectories.
type PreSimConfig struct {
	PositiveAoADeg float64 `json:"positive_aoa_deg"`
	ZeroAoADeg     float64 `json:"zero_aoa_deg"`
	NegativeAoADeg float64 `json:"negative_aoa_deg"`

	// ManeuverStartTime is the assumed maneuver onset in target flight seconds
	ManeuverStartTime float64 `json:"maneuver_start_time"`

	// ManeuverAltitude, when > 0, assumes the maneuver starts at this altitude
	ManeuverAltitude float64 `json:"maneuver_altitude"`

	// Horizon in seconds; 0 = MaxTime
	Horizon float64 `json:"horizon"`
}

// SelectorConfig tunes the optimal interceptor selector.
type SelectorConfig struct {
	// TriggerThreshold is the deviation in feet from the zero-maneuver
	// trajectory that counts as "target began maneuvering"
	TriggerThreshold float64 `json:"trigger_threshold"`

	// ObservationWindow in seconds (default: 10)
	ObservationWindow float64 `json:"observation_window"`
}

// OutputConfig flags are read by the front ends only; the engine ignores them.
type OutputConfig struct {
	Silent        bool `json:"silent"`
	SkipAnimation bool `json:"skip_animation"`
	SkipPlot      bool `json:"skip_plot"`
}

// BatchConfig configures repeated engagements.
type BatchConfig struct {
	// Runs is the number of engagements per strategy
	Runs int `json:"runs"`

	// Workers is the worker pool size; 0 = detect available concurrency,
	// 1 = serial
	Workers int `json:"workers"`

	// Strategy is "legacy", "phase-based" or "both"
	Strategy string `json:"strategy"`

	// Seed makes per-run perturbations reproducible
	Seed int64 `json:"seed"`

	// RandomizeManeuver draws the target maneuver case per run
	RandomizeManeuver bool `json:"randomize_maneuver"`

	// OnsetJitter is the +/- spread in seconds applied to the maneuver start
	OnsetJitter float64 `json:"onset_jitter"`

	// ProgressPerSecond caps how often progress is reported
	ProgressPerSecond float64 `json:"progress_per_second"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is the database driver (postgres)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// ServerConfig contains HTTP API configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// JWTSecret signs analyst session tokens (override via environment)
	JWTSecret string `json:"jwt_secret"`

	// TokenHours is how long a session token stays valid
	TokenHours int `json:"token_hours"`

	// AllowedOrigins for CORS
	AllowedOrigins []string `json:"allowed_origins"`

	// MaxBatchRuns caps the runs a single API request may launch
	MaxBatchRuns int `json:"max_batch_runs"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scenario: DefaultScenario(),
		Batch: BatchConfig{
			Runs:              100,
			Workers:           0, // detect
			Strategy:          "both",
			Seed:              1,
			RandomizeManeuver: true,
			OnsetJitter:       2.0,
			ProgressPerSecond: 2.0,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "interceptsim",
			Username:     "interceptsim",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			TokenHours:     24,
			AllowedOrigins: []string{"*"},
			MaxBatchRuns:   1000,
		},
	}
}

// DefaultScenario returns the reference engagement: a target descending from
// 120 kft heading north at 6,000 ft/s that pulls a positive maneuver 20 s after
// launch, engaged by a three-round salvo from a battery 450 kft downrange.
func DefaultScenario() ScenarioConfig {
	return ScenarioConfig{
		TimeStep:        0.01,
		MaxTime:         100,
		LaunchDelay:     0,
		InterceptRadius: 50,
		EndOnFirstHit:   true,
		DivergenceTime:  0.5,
		Recording:       false,
		Target: TargetConfig{
			InitialPosition: mgl64.Vec3{0, 0, -120000},
			Speed:           6000,
			HeadingDeg:      0,
			FlightPathDeg:   -5,
			Mass:            15,
			ReferenceArea:   3,
			CLAlpha:         3.0,
			CD0:             0.1,
			CDAlpha:         0.5,
			MaxG:            30,
			AoAMinDeg:       -5,
			AoAMaxDeg:       10,
			Maneuver: ManeuverConfig{
				AoADeg:    10,
				StartTime: 20,
			},
		},
		Interceptor: InterceptorConfig{
			Speed:         9000,
			Mass:          10,
			ReferenceArea: 0.5,
			CD0:           0.2,
			MaxG:          50,
			Drag:          true,
			Gravity:       true,
		},
		Salvo: SalvoConfig{
			LaunchPosition: mgl64.Vec3{450000, 0, -60000},
			LaunchOffsets:  []float64{10, 10.5, 11},
		},
		Guidance: GuidanceConfig{
			NavigationGain: 4,
			PIPGain:        3,
			TerminalRange:  5 * coordinates.KilometersToFeet,
			MidcourseRange: 10 * coordinates.KilometersToFeet,
		},
		PreSim: PreSimConfig{
			PositiveAoADeg:    10,
			ZeroAoADeg:        0,
			NegativeAoADeg:    -5,
			ManeuverStartTime: 20,
		},
		Selector: SelectorConfig{
			TriggerThreshold:  1.0,
			ObservationWindow: 10,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("INTERCEPT_SIM_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("INTERCEPT_SIM_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if secret := os.Getenv("INTERCEPT_SIM_JWT_SECRET"); secret != "" {
		c.Server.JWTSecret = secret
	}
	if workers := os.Getenv("INTERCEPT_SIM_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n >= 0 {
			c.Batch.Workers = n
		}
	}
}

// Validate checks the scenario before any engagement state is created.
// A launch delay beyond MaxTime is allowed; such runs simply time out.
func (s ScenarioConfig) Validate() error {
	for _, f := range s.numericFields() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidScenario, f.name, f.value)
		}
	}

	if !(s.TimeStep > 0) || math.IsInf(s.TimeStep, 0) {
		return fmt.Errorf("%w: time step must be positive, got %v", ErrInvalidScenario, s.TimeStep)
	}
	if !(s.MaxTime > 0) || math.IsInf(s.MaxTime, 0) {
		return fmt.Errorf("%w: max time must be positive, got %v", ErrInvalidScenario, s.MaxTime)
	}
	if s.TimeStep > s.MaxTime {
		return fmt.Errorf("%w: time step %v exceeds max time %v", ErrInvalidScenario, s.TimeStep, s.MaxTime)
	}
	if s.LaunchDelay < 0 {
		return fmt.Errorf("%w: launch delay must not be negative, got %v", ErrInvalidScenario, s.LaunchDelay)
	}
	if s.InterceptRadius <= 0 {
		return fmt.Errorf("%w: intercept radius must be positive, got %v", ErrInvalidScenario, s.InterceptRadius)
	}
	if s.DivergenceTime < 0 {
		return fmt.Errorf("%w: divergence time must not be negative", ErrInvalidScenario)
	}

	if len(s.Salvo.LaunchOffsets) == 0 {
		return fmt.Errorf("%w: salvo has no interceptors", ErrInvalidScenario)
	}
	for i, off := range s.Salvo.LaunchOffsets {
		if off < 0 || off > s.MaxTime {
			return fmt.Errorf("%w: interceptor %d launch offset %v outside [0, %v]", ErrInvalidScenario, i, off, s.MaxTime)
		}
	}

	if s.Target.Speed <= 0 {
		return fmt.Errorf("%w: target speed must be positive", ErrInvalidScenario)
	}
	if s.Target.Mass <= 0 {
		return fmt.Errorf("%w: target mass must be positive", ErrInvalidScenario)
	}
	if s.Target.MaxG <= 0 {
		return fmt.Errorf("%w: target G limit must be positive", ErrInvalidScenario)
	}
	if s.Target.AoAMinDeg > s.Target.AoAMaxDeg {
		return fmt.Errorf("%w: target AoA range [%v, %v] is empty", ErrInvalidScenario, s.Target.AoAMinDeg, s.Target.AoAMaxDeg)
	}

	if s.Interceptor.Speed <= 0 {
		return fmt.Errorf("%w: interceptor speed must be positive", ErrInvalidScenario)
	}
	if s.Interceptor.Mass <= 0 {
		return fmt.Errorf("%w: interceptor mass must be positive", ErrInvalidScenario)
	}
	if s.Interceptor.MaxG <= 0 {
		return fmt.Errorf("%w: interceptor G limit must be positive", ErrInvalidScenario)
	}

	if s.Guidance.NavigationGain <= 0 || s.Guidance.PIPGain <= 0 {
		return fmt.Errorf("%w: guidance gains must be positive", ErrInvalidScenario)
	}
	if s.Guidance.TerminalRange <= 0 || s.Guidance.MidcourseRange < s.Guidance.TerminalRange {
		return fmt.Errorf("%w: need 0 < terminal range <= midcourse range", ErrInvalidScenario)
	}

	if s.Selector.ObservationWindow <= 0 {
		return fmt.Errorf("%w: observation window must be positive", ErrInvalidScenario)
	}
	if s.Selector.TriggerThreshold <= 0 {
		return fmt.Errorf("%w: selector trigger threshold must be positive", ErrInvalidScenario)
	}
	if s.PreSim.Horizon < 0 {
		return fmt.Errorf("%w: pre-simulation horizon must not be negative", ErrInvalidScenario)
	}

	return nil
}

type numericField struct {
	name  string
	value float64
}

// numericFields lists every floating-point setting of the scenario, named by
// its JSON path.
func (s ScenarioConfig) numericFields() []numericField {
	t, ic, g, p := s.Target, s.Interceptor, s.Guidance, s.PreSim
	fields := []numericField{
		{"time_step", s.TimeStep},
		{"max_time", s.MaxTime},
		{"launch_delay", s.LaunchDelay},
		{"intercept_radius", s.InterceptRadius},
		{"divergence_time", s.DivergenceTime},
		{"target.speed", t.Speed},
		{"target.heading_deg", t.HeadingDeg},
		{"target.flight_path_deg", t.FlightPathDeg},
		{"target.mass", t.Mass},
		{"target.reference_area", t.ReferenceArea},
		{"target.cl_alpha", t.CLAlpha},
		{"target.cd0", t.CD0},
		{"target.cd_alpha", t.CDAlpha},
		{"target.max_g", t.MaxG},
		{"target.aoa_min_deg", t.AoAMinDeg},
		{"target.aoa_max_deg", t.AoAMaxDeg},
		{"target.maneuver.aoa_deg", t.Maneuver.AoADeg},
		{"target.maneuver.start_time", t.Maneuver.StartTime},
		{"target.maneuver.start_altitude", t.Maneuver.StartAltitude},
		{"interceptor.speed", ic.Speed},
		{"interceptor.mass", ic.Mass},
		{"interceptor.reference_area", ic.ReferenceArea},
		{"interceptor.cd0", ic.CD0},
		{"interceptor.max_g", ic.MaxG},
		{"guidance.navigation_gain", g.NavigationGain},
		{"guidance.pip_gain", g.PIPGain},
		{"guidance.terminal_range", g.TerminalRange},
		{"guidance.midcourse_range", g.MidcourseRange},
		{"presim.positive_aoa_deg", p.PositiveAoADeg},
		{"presim.zero_aoa_deg", p.ZeroAoADeg},
		{"presim.negative_aoa_deg", p.NegativeAoADeg},
		{"presim.maneuver_start_time", p.ManeuverStartTime},
		{"presim.maneuver_altitude", p.ManeuverAltitude},
		{"presim.horizon", p.Horizon},
		{"selector.trigger_threshold", s.Selector.TriggerThreshold},
		{"selector.observation_window", s.Selector.ObservationWindow},
	}
	for i := 0; i < 3; i++ {
		fields = append(fields,
			numericField{fmt.Sprintf("target.initial_position[%d]", i), t.InitialPosition[i]},
			numericField{fmt.Sprintf("salvo.launch_position[%d]", i), s.Salvo.LaunchPosition[i]},
		)
	}
	for i, off := range s.Salvo.LaunchOffsets {
		fields = append(fields, numericField{fmt.Sprintf("salvo.launch_offsets[%d]", i), off})
	}
	return fields
}

// Steps returns the number of integration steps that fit in MaxTime.
func (s ScenarioConfig) Steps() int {
	return int(math.Round(s.MaxTime / s.TimeStep))
}
