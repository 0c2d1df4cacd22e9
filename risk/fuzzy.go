package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Input names understood by rules.
const (
	InputSeverity  = "severity"
	InputDensity   = "density"
	InputFreshness = "freshness"
)

var inputNames = []string{InputSeverity, InputDensity, InputFreshness}

// DefaultFloor is the score of an edge with no incidents.
const DefaultFloor = 0.05

// Partition splits one crisp input into ordered fuzzy terms. Points holds one breakpoint per
// term: the first and last terms are shoulders, the others triangles peaking at their point,
// so memberships always sum to one.
type Partition struct {
	Terms  []string  `yaml:"terms" json:"terms"`
	Points []float64 `yaml:"points" json:"points"`
}

// OutputClass is a danger class described by a triangle on [0,1].
type OutputClass struct {
	Name     string     `yaml:"name" json:"name"`
	Triangle [3]float64 `yaml:"triangle" json:"triangle"`
}

func (c OutputClass) centroid() float64 {
	return (c.Triangle[0] + c.Triangle[1] + c.Triangle[2]) / 3
}

// Rule maps a conjunction of input terms to an output class.
type Rule struct {
	If   map[string]string `yaml:"if" json:"if"`
	Then string            `yaml:"then" json:"then"`
}

// FuzzyConfig is the data that drives the evaluator.
type FuzzyConfig struct {
	Severity  Partition     `yaml:"severity" json:"severity"`
	Density   Partition     `yaml:"density" json:"density"`
	Freshness Partition     `yaml:"freshness" json:"freshness"`
	Classes   []OutputClass `yaml:"classes" json:"classes"` // ordered from least to most dangerous
	Rules     []Rule        `yaml:"rules" json:"rules"`
	Floor     float64       `yaml:"floor" json:"floor"`
}

// DefaultFuzzyConfig returns the rule base used when no configuration is supplied.
func DefaultFuzzyConfig() FuzzyConfig {
	lmh := []string{"low", "medium", "high"}
	return FuzzyConfig{
		Severity:  Partition{Terms: lmh, Points: []float64{0, 4, 12}},
		Density:   Partition{Terms: lmh, Points: []float64{0, 1, 4}},
		Freshness: Partition{Terms: lmh, Points: []float64{0, 0.5, 1}},
		Classes: []OutputClass{
			{Name: "low", Triangle: [3]float64{0, 0.1, 0.3}},
			{Name: "medium", Triangle: [3]float64{0.2, 0.4, 0.6}},
			{Name: "high", Triangle: [3]float64{0.5, 0.7, 0.85}},
			{Name: "critical", Triangle: [3]float64{0.75, 0.9, 1.0}},
		},
		Rules: []Rule{
			{If: map[string]string{InputSeverity: "low"}, Then: "low"},
			{If: map[string]string{InputSeverity: "medium"}, Then: "medium"},
			{If: map[string]string{InputSeverity: "high"}, Then: "high"},
			{If: map[string]string{InputDensity: "medium"}, Then: "medium"},
			{If: map[string]string{InputDensity: "high"}, Then: "high"},
			{If: map[string]string{InputSeverity: "high", InputDensity: "high"}, Then: "critical"},
			{If: map[string]string{InputSeverity: "high", InputFreshness: "high"}, Then: "critical"},
		},
		Floor: DefaultFloor,
	}
}

// ConfigError lists everything wrong with a FuzzyConfig.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid fuzzy configuration: " + strings.Join(e.Problems, "; ")
}

// Evaluator scores edges and routes. It is immutable and safe for concurrent use.
type Evaluator struct {
	partitions [3]Partition
	centroids  []float64
	classNames []string
	table      []int // class index per cell, severity-major
	dims       [3]int
	floor      float64
}

// NewEvaluator validates cfg and compiles its rules into a complete, monotone table.
func NewEvaluator(cfg FuzzyConfig) (*Evaluator, error) {
	cerr := &ConfigError{}
	bad := func(format string, args ...any) {
		cerr.Problems = append(cerr.Problems, fmt.Sprintf(format, args...))
	}

	ev := &Evaluator{
		partitions: [3]Partition{cfg.Severity, cfg.Density, cfg.Freshness},
		floor:      cfg.Floor,
	}

	for i, p := range ev.partitions {
		name := inputNames[i]
		ev.dims[i] = len(p.Terms)
		if len(p.Terms) < 2 {
			bad("input %s needs at least two terms", name)
			continue
		}
		if len(p.Points) != len(p.Terms) {
			bad("input %s has %d terms but %d points", name, len(p.Terms), len(p.Points))
			continue
		}
		seen := map[string]bool{}
		for j, term := range p.Terms {
			if term == "" || seen[term] {
				bad("input %s has empty or repeated term %q", name, term)
			}
			seen[term] = true
			if math.IsNaN(p.Points[j]) || math.IsInf(p.Points[j], 0) {
				bad("input %s point %d is not finite", name, j)
			}
			if j > 0 && p.Points[j] <= p.Points[j-1] {
				bad("input %s points must be strictly increasing", name)
			}
		}
	}

	if len(cfg.Classes) == 0 {
		bad("no output classes")
	}
	classIndex := map[string]int{}
	for i, c := range cfg.Classes {
		t := c.Triangle
		if _, dup := classIndex[c.Name]; dup || c.Name == "" {
			bad("empty or repeated class %q", c.Name)
		}
		classIndex[c.Name] = i
		if t[0] < 0 || t[2] > 1 || t[0] > t[1] || t[1] > t[2] || t[0] == t[2] {
			bad("class %s triangle %v must satisfy 0 <= a <= b <= c <= 1 with a < c", c.Name, t)
		}
		ev.centroids = append(ev.centroids, c.centroid())
		ev.classNames = append(ev.classNames, c.Name)
		if i > 0 && ev.centroids[i] < ev.centroids[i-1] {
			bad("class %s is listed after a more dangerous class", c.Name)
		}
	}

	if cfg.Floor < 0 || cfg.Floor >= 1 || math.IsNaN(cfg.Floor) {
		bad("floor %v must be in [0,1)", cfg.Floor)
	}

	if len(cfg.Rules) == 0 {
		bad("no rules")
	}
	if len(cerr.Problems) > 0 {
		return nil, cerr
	}

	type compiled struct {
		terms [3]int // -1 matches any term
		class int
	}
	rules := make([]compiled, 0, len(cfg.Rules))
	for ri, r := range cfg.Rules {
		cr := compiled{terms: [3]int{-1, -1, -1}}
		if len(r.If) == 0 {
			bad("rule %d has no conditions", ri+1)
		}
		for input, term := range r.If {
			idx := indexOf(inputNames, input)
			if idx < 0 {
				bad("rule %d uses unknown input %q", ri+1, input)
				continue
			}
			t := indexOf(ev.partitions[idx].Terms, term)
			if t < 0 {
				bad("rule %d uses unknown term %q for %s", ri+1, term, input)
				continue
			}
			cr.terms[idx] = t
		}
		c, ok := classIndex[r.Then]
		if !ok {
			bad("rule %d concludes unknown class %q", ri+1, r.Then)
		}
		cr.class = c
		rules = append(rules, cr)
	}
	if len(cerr.Problems) > 0 {
		return nil, cerr
	}

	ev.table = make([]int, ev.dims[0]*ev.dims[1]*ev.dims[2])
	for s := 0; s < ev.dims[0]; s++ {
		for d := 0; d < ev.dims[1]; d++ {
			for f := 0; f < ev.dims[2]; f++ {
				cell := [3]int{s, d, f}
				best := -1
				for _, r := range rules {
					if matches(r.terms, cell) && r.class > best {
						best = r.class
					}
				}
				if best < 0 {
					bad("no rule covers %s=%s %s=%s %s=%s",
						InputSeverity, ev.partitions[0].Terms[s],
						InputDensity, ev.partitions[1].Terms[d],
						InputFreshness, ev.partitions[2].Terms[f])
					continue
				}
				ev.table[ev.cell(s, d, f)] = best
			}
		}
	}
	if len(cerr.Problems) > 0 {
		return nil, cerr
	}

	for s := 0; s < ev.dims[0]; s++ {
		for d := 0; d < ev.dims[1]; d++ {
			for f := 0; f < ev.dims[2]; f++ {
				here := ev.centroids[ev.table[ev.cell(s, d, f)]]
				next := [3][3]int{{s + 1, d, f}, {s, d + 1, f}, {s, d, f + 1}}
				for axis, n := range next {
					if n[axis] >= ev.dims[axis] {
						continue
					}
					if ev.centroids[ev.table[ev.cell(n[0], n[1], n[2])]] < here {
						bad("rules are not monotone in %s at %s=%s %s=%s %s=%s",
							inputNames[axis],
							InputSeverity, ev.partitions[0].Terms[s],
							InputDensity, ev.partitions[1].Terms[d],
							InputFreshness, ev.partitions[2].Terms[f])
					}
				}
			}
		}
	}
	if len(cerr.Problems) > 0 {
		return nil, cerr
	}
	return ev, nil
}

func matches(terms, cell [3]int) bool {
	for i := range terms {
		if terms[i] >= 0 && terms[i] != cell[i] {
			return false
		}
	}
	return true
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func (ev *Evaluator) cell(s, d, f int) int {
	return (s*ev.dims[1]+d)*ev.dims[2] + f
}

// Floor is the lowest score the evaluator produces.
func (ev *Evaluator) Floor() float64 {
	return ev.floor
}

// Class returns the name of the table class for a cell given by term names, for inspection.
func (ev *Evaluator) Class(severity, density, freshness string) (string, bool) {
	s := indexOf(ev.partitions[0].Terms, severity)
	d := indexOf(ev.partitions[1].Terms, density)
	f := indexOf(ev.partitions[2].Terms, freshness)
	if s < 0 || d < 0 || f < 0 {
		return "", false
	}
	return ev.classNames[ev.table[ev.cell(s, d, f)]], true
}

// memberships returns the degree of x in every term of p. Degrees sum to one.
func memberships(p Partition, x float64) []float64 {
	mu := make([]float64, len(p.Points))
	pts := p.Points
	n := len(pts)
	switch {
	case x <= pts[0]:
		mu[0] = 1
	case x >= pts[n-1]:
		mu[n-1] = 1
	default:
		i := sort.SearchFloat64s(pts, x)
		if pts[i] == x {
			mu[i] = 1
			break
		}
		// pts[i-1] < x < pts[i]
		t := (x - pts[i-1]) / (pts[i] - pts[i-1])
		mu[i-1] = 1 - t
		mu[i] = t
	}
	return mu
}

// Infer runs the rule table on crisp inputs and returns a score in [Floor, 1].
func (ev *Evaluator) Infer(severity, density, freshness float64) float64 {
	ms := memberships(ev.partitions[0], severity)
	md := memberships(ev.partitions[1], density)
	mf := memberships(ev.partitions[2], freshness)

	var num, den float64
	for s, a := range ms {
		if a == 0 {
			continue
		}
		for d, b := range md {
			if b == 0 {
				continue
			}
			for f, c := range mf {
				if c == 0 {
					continue
				}
				w := a * b * c
				num += w * ev.centroids[ev.table[ev.cell(s, d, f)]]
				den += w
			}
		}
	}
	if den == 0 {
		return ev.floor
	}
	return clamp(num/den, ev.floor, 1)
}

// EvaluateEdge scores one edge. An edge without incidents scores Floor.
func (ev *Evaluator) EvaluateEdge(p *EdgeRiskProfile) float64 {
	if p == nil || p.Count == 0 {
		return ev.floor
	}
	return ev.Infer(p.WeightedSeverity, p.Density, p.Freshness)
}

// EvaluateRoute combines per-edge scores into a route danger level weighted by edge length.
// When every edge has zero length the plain mean is used; an empty route scores Floor.
func (ev *Evaluator) EvaluateRoute(lengths, scores []float64) float64 {
	if len(scores) == 0 || len(lengths) != len(scores) {
		return ev.floor
	}
	var total, weighted, sum float64
	for i, s := range scores {
		total += lengths[i]
		weighted += s * lengths[i]
		sum += s
	}
	if total <= 0 {
		return clamp(sum/float64(len(scores)), ev.floor, 1)
	}
	return clamp(weighted/total, ev.floor, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
