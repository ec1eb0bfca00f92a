package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
)

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
	UpdateText(string)
}

type progressSpinnerFactory func(string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithRemoveWhenDone(false).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// StepStatus is the state of a progress step.
type StepStatus int

const (
	// StepPending indicates a step has not yet started.
	StepPending StepStatus = iota
	// StepRunning indicates a step is currently in progress.
	StepRunning
	// StepCompleted indicates a step finished successfully.
	StepCompleted
	// StepFailed indicates a step failed.
	StepFailed
)

// Step is one line of progress output.
type Step struct {
	ID      string
	Message string
	Status  StepStatus
	// IndentLevel 0 steps print a heading; nested steps get a spinner.
	IndentLevel int
	startTime   time.Time
}

// ProgressManager shows a fixed sequence of steps. Only one spinner runs at a time.
type ProgressManager struct {
	out            io.Writer
	steps          map[string]*Step
	currentSpinner progressSpinner
	spinnerFactory progressSpinnerFactory
	disabled       bool

	mu sync.Mutex
}

// ProgressManagerOption customizes a ProgressManager.
type ProgressManagerOption func(*ProgressManager)

// WithProgressOutput enables or disables terminal output.
func WithProgressOutput(enabled bool) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.disabled = !enabled
	}
}

func withProgressSpinnerFactory(factory progressSpinnerFactory) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.spinnerFactory = factory
	}
}

// NewProgressManager registers steps up front. Headings and results are written to out.
func NewProgressManager(out io.Writer, steps []*Step, opts ...ProgressManagerOption) *ProgressManager {
	pm := &ProgressManager{
		out:            out,
		steps:          make(map[string]*Step, len(steps)),
		spinnerFactory: defaultSpinnerFactory,
	}
	for _, step := range steps {
		pm.steps[step.ID] = step
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

func indent(step *Step) string {
	if step.IndentLevel == 0 {
		return ""
	}
	return strings.Repeat("  ", step.IndentLevel) + "→ "
}

func (pm *ProgressManager) step(id string) (*Step, error) {
	step, ok := pm.steps[id]
	if !ok {
		return nil, errors.Errorf("step %q not found", id)
	}
	return step, nil
}

// Start marks a step running and starts its spinner.
func (pm *ProgressManager) Start(stepID string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, err := pm.step(stepID)
	if err != nil {
		return err
	}
	step.Status = StepRunning
	step.startTime = time.Now()
	if pm.disabled {
		return nil
	}
	if step.IndentLevel == 0 {
		fmt.Fprintf(pm.out, " …  %s\n", step.Message) //nolint:errcheck
		return nil
	}
	if pm.currentSpinner != nil {
		_ = pm.currentSpinner.Stop() //nolint:errcheck
	}
	spinner, err := pm.spinnerFactory(" " + indent(step) + step.Message)
	if err != nil {
		return errors.Wrap(err, "failed to start spinner")
	}
	pm.currentSpinner = spinner
	return nil
}

// Complete marks a step completed. A non-empty message replaces the step's own.
func (pm *ProgressManager) Complete(stepID, message string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, err := pm.step(stepID)
	if err != nil {
		return err
	}
	step.Status = StepCompleted
	if message == "" {
		message = step.Message
	}
	if !step.startTime.IsZero() {
		message += fmt.Sprintf(" (%s)", time.Since(step.startTime).Round(time.Millisecond))
	}
	if pm.disabled {
		return nil
	}
	if pm.currentSpinner != nil {
		pm.currentSpinner.Success(" " + indent(step) + message)
		pm.currentSpinner = nil
		return nil
	}
	fmt.Fprintf(pm.out, " ✓  %s%s\n", indent(step), message) //nolint:errcheck
	return nil
}

// Fail marks a step failed with err.
func (pm *ProgressManager) Fail(stepID string, err error) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, stepErr := pm.step(stepID)
	if stepErr != nil {
		return stepErr
	}
	step.Status = StepFailed
	if pm.disabled {
		return nil
	}
	message := fmt.Sprintf("%s: %v", step.Message, err)
	if pm.currentSpinner != nil {
		pm.currentSpinner.Fail(" " + indent(step) + message)
		pm.currentSpinner = nil
		return nil
	}
	fmt.Fprintf(pm.out, " ✗  %s%s\n", indent(step), message) //nolint:errcheck
	return nil
}

// UpdateText replaces the text of the running spinner.
func (pm *ProgressManager) UpdateText(text string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.disabled || pm.currentSpinner == nil {
		return
	}
	pm.currentSpinner.UpdateText(text)
}

// Stop stops any running spinner.
func (pm *ProgressManager) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.currentSpinner != nil {
		_ = pm.currentSpinner.Stop() //nolint:errcheck
		pm.currentSpinner = nil
	}
}
