// Package gohsmm provides a hidden semi-Markov model (HSMM) engine for Go,
// designed for discrete-state sequence modeling with explicit state-duration
// distributions, multivariate categorical emissions, and state-dependent
// missing-data behavior.
//
// Unlike a standard HMM, an HSMM models the number of consecutive time steps
// spent in a state with an explicit sojourn distribution instead of a
// geometric self-transition, and treats missing observations as informative
// evidence whose probability depends on the hidden state.
//
// # Features
//
// - Model specification with full cross-consistency validation
// - Simulation of synthetic observation sequences with ground-truth states
// - Explicit-duration forward-backward posterior decoding in log space
// - EM (generalized Baum-Welch) parameter re-estimation with convergence
// diagnostics
// - CPU-parallel E-step across independent sequences
// - Robust structured error handling and logging
//
// # Installation
//
// Install gohsmm using go get:
//
//	go get github.com/YuminosukeSato/gohsmm
//
// # Quick Start
//
// Here's a two-state example with alternating states:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/gohsmm/hsmm"
//	)
//
//	func main() {
//	    model, err := hsmm.Specify(hsmm.ModelSpec{
//	        States:     []hsmm.State{{Name: "M"}, {Name: "C"}},
//	        Initial:    []float64{1, 0},
//	        Transition: [][]float64{{0, 1}, {1, 0}},
//	        Sojourns: []hsmm.SojournDist{
//	            hsmm.NewNormalSojourn(4, 1.5, 15),
//	            hsmm.NewNormalSojourn(24, 3, 40),
//	        },
//	        Emissions: []hsmm.EmissionSpec{{
//	            Variable: "bleeding",
//	            Values:   []string{"no", "yes"},
//	            Probs:    [][]float64{{0.03, 0.95}, {0.97, 0.05}},
//	        }},
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    sim := hsmm.NewSimulator(model, hsmm.WithSeed(42))
//	    seq, err := sim.Run("seq-1", 20)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    dec := hsmm.NewDecoder(model)
//	    res, err := dec.Decode(seq.WithoutStates())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(res.States())
//	}
//
// For parameter estimation from observed sequences, see hsmm.Fitter.
package gohsmm
