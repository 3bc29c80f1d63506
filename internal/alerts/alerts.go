// Package alerts evaluates operator-defined threshold rules against the
// live frame stream. Rules are CEL expressions over the decoded frame's
// fields, so thresholds ship in config instead of code:
//
//	altitude_ft > 10000.0
//	frame_type == "temperature" && temperature_c < -20.0
//	deployment_state == "drogue deployed"
//
// A rule fires on the edge: one alert when its condition first becomes
// true, rearmed after the condition clears.
package alerts

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	"github.com/CarletonURocketry/ground-station/internal/units"
	"github.com/CarletonURocketry/ground-station/pkg/log"
)

// Rule is one configured threshold check.
type Rule struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Alert is one fired rule occurrence.
type Alert struct {
	Rule        string
	Expr        string
	MissionTime uint32
}

type compiledRule struct {
	rule   Rule
	prog   cel.Program
	firing bool
}

// Engine holds the compiled rule set. Observe is driven from the ingest
// path, which is single-threaded per source, so the engine keeps no lock.
//
// Measurement variables are sticky: each frame updates its own fields
// and rules always see the last known value of the rest, so an altitude
// rule does not flap when unrelated frames interleave.
type Engine struct {
	rules   []compiledRule
	vars    map[string]any
	logger  log.Logger
	onAlert func(Alert)
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("frame_type", cel.StringType),
		cel.Variable("mission_time_ms", cel.IntType),
		cel.Variable("deployment_state", cel.StringType),
		cel.Variable("altitude_ft", cel.DoubleType),
		cel.Variable("altitude_m", cel.DoubleType),
		cel.Variable("pressure_pa", cel.DoubleType),
		cel.Variable("temperature_c", cel.DoubleType),
		cel.Variable("humidity_pct", cel.DoubleType),
		cel.Variable("latitude", cel.DoubleType),
		cel.Variable("longitude", cel.DoubleType),
	)
}

// New compiles the rule set. A rule that does not parse or check is a
// configuration error surfaced immediately, not at flight time. onAlert
// may be nil; fired alerts are always logged.
func New(rules []Rule, logger log.Logger, onAlert func(Alert)) (*Engine, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		vars: map[string]any{
			"frame_type":       "",
			"mission_time_ms":  int64(0),
			"deployment_state": "",
			"altitude_ft":      0.0,
			"altitude_m":       0.0,
			"pressure_pa":      0.0,
			"temperature_c":    0.0,
			"humidity_pct":     0.0,
			"latitude":         0.0,
			"longitude":        0.0,
		},
		logger:  logger,
		onAlert: onAlert,
	}
	for _, r := range rules {
		expr := strings.TrimSpace(r.Expr)
		if r.Name == "" || expr == "" {
			return nil, fmt.Errorf("alerts: rule needs both name and expr: %+v", r)
		}
		ast, iss := env.Parse(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, iss.Err())
		}
		checked, iss := env.Check(ast)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, iss.Err())
		}
		prog, err := env.Program(checked)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{rule: r, prog: prog})
	}
	return e, nil
}

// Observe evaluates every rule against one accepted frame.
func (e *Engine) Observe(f frame.Frame) {
	if len(e.rules) == 0 {
		return
	}
	e.fold(f)
	for i := range e.rules {
		r := &e.rules[i]
		out, _, err := r.prog.Eval(e.vars)
		if err != nil {
			// Evaluation faults (bad dyn access) disable nothing; the rule
			// just does not match this frame.
			continue
		}
		hit, ok := out.Value().(bool)
		if !ok {
			continue
		}
		switch {
		case hit && !r.firing:
			r.firing = true
			e.logger.Warn("alert fired",
				log.Str("rule", r.rule.Name),
				log.Str("expr", r.rule.Expr),
				log.Uint64("mission_time", uint64(f.MissionTime)))
			if e.onAlert != nil {
				e.onAlert(Alert{Rule: r.rule.Name, Expr: r.rule.Expr, MissionTime: f.MissionTime})
			}
		case !hit && r.firing:
			r.firing = false
			e.logger.Info("alert cleared",
				log.Str("rule", r.rule.Name),
				log.Uint64("mission_time", uint64(f.MissionTime)))
		}
	}
}

func (e *Engine) fold(f frame.Frame) {
	e.vars["frame_type"] = f.Type.String()
	e.vars["mission_time_ms"] = int64(f.MissionTime)
	switch p := f.Payload.(type) {
	case frame.StatusPayload:
		e.vars["deployment_state"] = p.DeploymentState.String()
	case frame.AltitudePayload:
		e.vars["altitude_m"] = p.Metres()
		e.vars["altitude_ft"] = units.MetresToFeet(p.Metres())
	case frame.PressurePayload:
		e.vars["pressure_pa"] = float64(p.Pascals)
	case frame.TemperaturePayload:
		e.vars["temperature_c"] = p.Celsius()
	case frame.HumidityPayload:
		e.vars["humidity_pct"] = p.Percentage()
	case frame.GNSSPayload:
		e.vars["latitude"] = p.LatitudeDegrees()
		e.vars["longitude"] = p.LongitudeDegrees()
	}
}
