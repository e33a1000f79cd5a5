/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scoring derives visibility scores, share of voice, trending
// keywords and daily metrics from the persisted citation stream. Every
// computation is deterministic over its snapshot of inputs.
package scoring

// Component score weights. Frequency dominates: being cited at all is worth
// more than where in the list the citation lands.
var ComponentWeights = map[string]float64{
	"frequency": 0.40,
	"position":  0.30,
	"diversity": 0.15,
	"context":   0.10,
	"momentum":  0.05,
}

// GetComponentWeight returns the weight for a component, 0.0 for unknown
// names.
func GetComponentWeight(component string) float64 {
	return ComponentWeights[component]
}

// GradeFor maps a composite score to its letter grade.
func GradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}
