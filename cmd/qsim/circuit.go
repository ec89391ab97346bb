package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/gogpu/qsim"
)

var errBadCircuit = errors.New("invalid circuit")

// Circuit is the JSON description of a run.
//
//	{
//	  "qubits": 2,
//	  "initial": 0,
//	  "ops": [
//	    {"gate": "h", "target": 0},
//	    {"gate": "x", "target": 1, "controls": [{"qubit": 0, "on": true}]}
//	  ]
//	}
//
// Amplitudes, when present, replace the classical initial state and are
// given as [re, im] pairs.
type Circuit struct {
	Qubits     int          `json:"qubits"`
	Initial    int          `json:"initial"`
	Amplitudes [][2]float64 `json:"amplitudes,omitempty"`
	Ops        []Op         `json:"ops"`
}

// Op is one circuit operation.
type Op struct {
	Gate     string    `json:"gate"`
	Target   int       `json:"target"`
	A        int       `json:"a"`
	B        int       `json:"b"`
	Offset   int       `json:"offset"`
	Span     int       `json:"span"`
	Amount   int       `json:"amount"`
	Theta    float64   `json:"theta"`
	P        float64   `json:"p"`
	Controls []Control `json:"controls,omitempty"`
}

// Control conditions an operation on one qubit.
type Control struct {
	Qubit int  `json:"qubit"`
	On    bool `json:"on"`
}

// ParseCircuit decodes a JSON circuit.
func ParseCircuit(data []byte) (*Circuit, error) {
	var c Circuit
	if err := sonnet.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadCircuit, err)
	}
	if c.Amplitudes == nil && (c.Qubits < 0 || c.Qubits > qsim.MaxQubits) {
		return nil, fmt.Errorf("%w: %d qubits", errBadCircuit, c.Qubits)
	}
	return &c, nil
}

// Label returns a short description such as "h q0 if q1=1".
func (op Op) Label() string {
	var b strings.Builder
	switch strings.ToLower(op.Gate) {
	case "swap":
		fmt.Fprintf(&b, "swap q%d q%d", op.A, op.B)
	case "inc", "dec":
		fmt.Fprintf(&b, "%s q%d..q%d by %d", strings.ToLower(op.Gate), op.Offset, op.Offset+op.Span-1, op.Amount)
	case "phase":
		fmt.Fprintf(&b, "phase(%.3g) q%d", op.Theta, op.Target)
	case "rot":
		fmt.Fprintf(&b, "rot(%.3g) q%d", op.P, op.Target)
	default:
		fmt.Fprintf(&b, "%s q%d", strings.ToLower(op.Gate), op.Target)
	}
	for i, c := range op.Controls {
		if i == 0 {
			b.WriteString(" if")
		}
		v := 0
		if c.On {
			v = 1
		}
		fmt.Fprintf(&b, " q%d=%d", c.Qubit, v)
	}
	return b.String()
}

func (op Op) controlMask() (qsim.ControlMask, error) {
	mask := qsim.NoControls
	for _, c := range op.Controls {
		if c.Qubit < 0 || c.Qubit >= qsim.MaxQubits {
			return qsim.NoControls, fmt.Errorf("%w: control qubit %d", qsim.ErrInvalidMask, c.Qubit)
		}
		var err error
		mask, err = mask.Combine(qsim.ControlBitIs(c.Qubit, c.On))
		if err != nil {
			return qsim.NoControls, err
		}
	}
	return mask, nil
}

func (op Op) matrix() (qsim.Matrix2, error) {
	switch strings.ToLower(op.Gate) {
	case "i", "id":
		return qsim.Identity(), nil
	case "h":
		return qsim.Hadamard(), nil
	case "x":
		return qsim.PauliX(), nil
	case "y":
		return qsim.PauliY(), nil
	case "z":
		return qsim.PauliZ(), nil
	case "phase":
		return qsim.Phase(op.Theta), nil
	case "rot":
		return qsim.TargetedRotation(op.P), nil
	default:
		return qsim.Matrix2{}, fmt.Errorf("%w: unknown gate %q", errBadCircuit, op.Gate)
	}
}

// Apply returns s transformed by op.
func (op Op) Apply(s *qsim.State) (*qsim.State, error) {
	controls, err := op.controlMask()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(op.Gate) {
	case "swap":
		return s.WithSwap(op.A, op.B, controls)
	case "inc":
		return s.WithIncrement(op.Offset, op.Span, op.Amount, controls)
	case "dec":
		return s.WithIncrement(op.Offset, op.Span, -op.Amount, controls)
	}
	m, err := op.matrix()
	if err != nil {
		return nil, err
	}
	return s.WithGateApplied(op.Target, m, controls)
}

// Build creates the initial state and every intermediate state of c.
// The result holds len(c.Ops)+1 states.
func (c *Circuit) Build(e *qsim.Engine) ([]*qsim.State, error) {
	var (
		s   *qsim.State
		err error
	)
	if c.Amplitudes != nil {
		amps := make([]complex128, len(c.Amplitudes))
		for i, a := range c.Amplitudes {
			amps[i] = complex(a[0], a[1])
		}
		s, err = e.FromAmplitudes(amps)
	} else {
		s, err = e.FromClassicalState(c.Initial, c.Qubits)
	}
	if err != nil {
		return nil, err
	}

	states := []*qsim.State{s}
	for i, op := range c.Ops {
		s, err = op.Apply(s)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s): %w", i, op.Label(), err)
		}
		states = append(states, s)
	}
	return states, nil
}
