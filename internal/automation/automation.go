// Package automation drives a running engine from scripted scenarios: a
// sequence of control commands with optional pauses and expected replies.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrUnexpectedReply = errors.New("unexpected reply")

// Requester is a control channel client.
type Requester interface {
	Request(ctx context.Context, msg []byte) ([]byte, error)
}

// Scenario defines a scripted control sequence.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep sends one command, optionally after a pause. Expect is a
// regular expression the reply must match in full; empty accepts anything.
// Repeat sends the same command several times.
type ScenarioStep struct {
	Send   string        `yaml:"send"`
	Wait   time.Duration `yaml:"wait"`
	Expect string        `yaml:"expect"`
	Repeat int           `yaml:"repeat"`
}

// StepResult is the outcome of one sent command.
type StepResult struct {
	Step  int
	Sent  string
	Reply string
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if step.Send == "" && step.Wait == 0 {
			return nil, fmt.Errorf("step %d: neither send nor wait", i+1)
		}
		if step.Expect != "" {
			if _, err := regexp.Compile("^(?:" + step.Expect + ")$"); err != nil {
				return nil, fmt.Errorf("step %d: expect: %w", i+1, err)
			}
		}
	}
	return &scenario, nil
}

// RunScenario executes every step in order and stops at the first failed
// expectation. Results collected so far are returned with the error.
func RunScenario(ctx context.Context, scenario *Scenario, client Requester) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		if step.Wait > 0 {
			select {
			case <-time.After(step.Wait):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		if step.Send == "" {
			continue
		}

		var expect *regexp.Regexp
		if step.Expect != "" {
			expect = regexp.MustCompile("^(?:" + step.Expect + ")$")
		}

		n := max(step.Repeat, 1)
		for r := 0; r < n; r++ {
			reply, err := client.Request(ctx, []byte(step.Send))
			if err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
			results = append(results, StepResult{Step: i + 1, Sent: step.Send, Reply: string(reply)})
			if expect != nil && !expect.Match(reply) {
				return results, fmt.Errorf("step %d: %w: %q does not match %q", i+1, ErrUnexpectedReply, reply, step.Expect)
			}
		}
	}

	return results, nil
}
