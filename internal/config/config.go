// Package config loads startup configuration and the versioned constant
// tables. The embedded CUE schema is the source of truth for defaults;
// user files are unified with it, so unknown keys and out-of-range values
// are rejected before decoding.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/codex/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Config holds every startup key and tuning constant.
type Config struct {
	LatticeSize int `json:"latticeSize"`
	CardCount   int `json:"cardCount"`

	PhiTolerance float64 `json:"phiTolerance"`
	GoldenRatio  float64 `json:"goldenRatio"`

	DecayRate        float64    `json:"decayRate"`
	RegenRate        float64    `json:"regenRate"`
	RegenWindowMs    int        `json:"regenWindowMs"`
	InitialHealth    float64    `json:"initialHealth"`
	HysteresisMargin float64    `json:"hysteresisMargin"`
	Thresholds       Thresholds `json:"thresholds"`

	ConsentTimeoutMs int `json:"consentTimeoutMs"`
	IntensityCap     int `json:"intensityCap"`

	EtherDivisor        int     `json:"etherDivisor"`
	CoherenceBase       float64 `json:"coherenceBase"`
	RegularityK         float64 `json:"regularityK"`
	HarmonicIntervals   []int   `json:"harmonicIntervals"`
	AffinityWeight      float64 `json:"affinityWeight"`
	HarmonicWeight      float64 `json:"harmonicWeight"`
	TransferCoefficient float64 `json:"transferCoefficient"`

	PassIntervalMs  int `json:"passIntervalMs"`
	PassDeadlineMs  int `json:"passDeadlineMs"`
	SyncParallelism int `json:"syncParallelism"`

	Sacred                Sacred              `json:"sacred"`
	AcceptedDiscrepancies []Discrepancy       `json:"acceptedDiscrepancies"`
	CrossMappings         []CrossMapping      `json:"crossMappings"`
	SafetyProtocols       map[string][]string `json:"safetyProtocols"`
	Tables                Tables              `json:"tables"`
}

// Thresholds are the lower bounds of the severity tiers.
type Thresholds struct {
	Critical float64 `json:"critical"`
	Warning  float64 `json:"warning"`
	Caution  float64 `json:"caution"`
	Healthy  float64 `json:"healthy"`
}

// Sacred lists the declared taxonomy constants checked by validation.
type Sacred struct {
	LatticeSizes []int `json:"latticeSizes"`
	CardCount    int   `json:"cardCount"`
	MajorCount   int   `json:"majorCount"`
	MinorCount   int   `json:"minorCount"`
	SuitCount    int   `json:"suitCount"`
	RanksPerSuit int   `json:"ranksPerSuit"`
}

// Discrepancy is an accepted pair of differing counts. Order is irrelevant.
type Discrepancy struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Accepts reports whether the discrepancy covers counts x and y.
func (d Discrepancy) Accepts(x, y int) bool {
	return (d.A == x && d.B == y) || (d.A == y && d.B == x)
}

// CrossMapping declares a taxonomy pair that needs a mapping artifact.
type CrossMapping struct {
	A       string `json:"a"`
	B       string `json:"b"`
	Feature string `json:"feature"`
}

// Name is the artifact stem for the pair, e.g. "cards__lattice".
func (m CrossMapping) Name() string {
	return m.A + "__" + m.B
}

// Tables are the versioned constant tables referenced by key.
type Tables struct {
	SolfeggioHz        []float64        `json:"solfeggioHz"`
	GeometryTags       []string         `json:"geometryTags"`
	ElementalHarmonics map[string][]int `json:"elementalHarmonics"`
}

// ConsentTimeout returns the consent window as a duration.
func (c *Config) ConsentTimeout() time.Duration {
	return time.Duration(c.ConsentTimeoutMs) * time.Millisecond
}

// RegenWindow returns the post-activation regeneration window.
func (c *Config) RegenWindow() time.Duration {
	return time.Duration(c.RegenWindowMs) * time.Millisecond
}

// PassInterval returns the scheduler period.
func (c *Config) PassInterval() time.Duration {
	return time.Duration(c.PassIntervalMs) * time.Millisecond
}

// PassDeadline returns the soft deadline of a global pass.
func (c *Config) PassDeadline() time.Duration {
	return time.Duration(c.PassDeadlineMs) * time.Millisecond
}

// ProtocolsFor returns the safety protocols for a fusion type, falling back
// to the "default" entry.
func (c *Config) ProtocolsFor(fusionType string) []string {
	if p, ok := c.SafetyProtocols[fusionType]; ok && len(p) > 0 {
		return slices.Clone(p)
	}
	return slices.Clone(c.SafetyProtocols["default"])
}

// HarmonicsFor returns the elemental-harmonic offsets for an element.
func (c *Config) HarmonicsFor(e ir.Element) []int {
	return c.Tables.ElementalHarmonics[string(e)]
}

// Default decodes the schema defaults.
func Default() (*Config, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}
	return decode(schema)
}

// MustDefault is Default for tests and static initialization.
func MustDefault() *Config {
	cfg, err := Default()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load unifies a user CUE file or directory with the schema.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}

	user, err := loadUser(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode(schema.Unify(user))
}

// LoadBytes is Load for in-memory CUE source.
func LoadBytes(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}
	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, ir.ConfigurationError(fmt.Sprintf("compiling %s: %v", filename, err))
	}
	return decode(schema.Unify(user))
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Config")), nil
}

func loadUser(ctx *cue.Context, path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, ir.ConfigurationError(fmt.Sprintf("config not found: %s", path))
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, ir.ConfigurationError(fmt.Sprintf("reading %s: %v", path, err))
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, ir.ConfigurationError(fmt.Sprintf("compiling %s: %v", path, err))
		}
		return v, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, ir.ConfigurationError("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, ir.ConfigurationError(fmt.Sprintf("loading CUE files: %v", inst.Err))
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, ir.ConfigurationError(fmt.Sprintf("building CUE value: %v", err))
	}
	return v, nil
}

func decode(v cue.Value) (*Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, ir.ConfigurationError(fmt.Sprintf("invalid configuration: %v", err))
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, ir.ConfigurationError(fmt.Sprintf("decoding configuration: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate re-checks cross-field invariants the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(c.Sacred.LatticeSizes, c.LatticeSize) {
		errs = append(errs, fmt.Errorf("latticeSize %d not in sacred sizes %v", c.LatticeSize, c.Sacred.LatticeSizes))
	}
	if math.Abs(c.AffinityWeight+c.HarmonicWeight-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("affinityWeight + harmonicWeight must equal 1, got %g", c.AffinityWeight+c.HarmonicWeight))
	}
	th := c.Thresholds
	if !(0 < th.Critical && th.Critical < th.Warning && th.Warning < th.Caution && th.Caution < th.Healthy && th.Healthy <= 1) {
		errs = append(errs, fmt.Errorf("thresholds must be strictly increasing in (0,1]: %+v", th))
	}
	if len(c.Tables.SolfeggioHz) != 9 {
		errs = append(errs, fmt.Errorf("solfeggioHz needs 9 entries, got %d", len(c.Tables.SolfeggioHz)))
	}
	if len(c.Tables.GeometryTags) != 9 {
		errs = append(errs, fmt.Errorf("geometryTags needs 9 entries, got %d", len(c.Tables.GeometryTags)))
	}
	for _, e := range ir.Elements {
		if len(c.Tables.ElementalHarmonics[string(e)]) == 0 {
			errs = append(errs, fmt.Errorf("elementalHarmonics missing %s", e))
		}
	}
	if len(c.SafetyProtocols["default"]) == 0 {
		errs = append(errs, errors.New("safetyProtocols.default must be non-empty"))
	}
	if c.Sacred.SuitCount*c.Sacred.RanksPerSuit != c.Sacred.MinorCount {
		errs = append(errs, fmt.Errorf("sacred minorCount %d != %d suits x %d ranks", c.Sacred.MinorCount, c.Sacred.SuitCount, c.Sacred.RanksPerSuit))
	}
	if len(errs) > 0 {
		return ir.ConfigurationError(errors.Join(errs...).Error())
	}
	return nil
}
