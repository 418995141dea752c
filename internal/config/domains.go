package config

import "github.com/okian/pitchjudge/internal/domain/model"

// DomainConfig seeds one scoring domain.
type DomainConfig struct {
	ID          string             `koanf:"id"`
	Name        string             `koanf:"name"`
	Description string             `koanf:"description"`
	Criteria    map[string]string  `koanf:"criteria"`
	Weights     map[string]float64 `koanf:"weights"`
	// Disabled domains are stored but refuse new submissions.
	Disabled bool `koanf:"disabled"`
}

// Model converts the seed into a domain.
func (d DomainConfig) Model() *model.Domain { //nolint:gocritic // hugeParam: seeds are read once at startup
	m := &model.Domain{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Criteria:    make(map[string]string, len(d.Criteria)),
		Weights:     make(map[string]float64, len(d.Weights)),
		IsActive:    !d.Disabled,
	}
	for k, v := range d.Criteria {
		m.Criteria[k] = v
	}
	for k, v := range d.Weights {
		m.Weights[k] = v
	}
	return m
}

// DefaultDomains returns the built-in hackathon tracks.
func DefaultDomains() []DomainConfig {
	common := func(extra map[string]string, subject string) map[string]string {
		c := map[string]string{
			"innovation":   "Uniqueness of " + subject + " solution and creative problem-solving approach",
			"technical":    "Code quality, architecture, and scalability",
			"problem_fit":  "Clear problem statement and solution relevance to " + subject + " needs",
			"presentation": "Slide design, clarity, and information organization",
			"business":     "Market potential, monetization strategy, and competitive analysis",
			"demo":         "Working demonstration, feature completeness, and user experience",
		}
		for k, v := range extra {
			c[k] = v
		}
		return c
	}
	return []DomainConfig{
		{
			ID:          "fintech",
			Name:        "FinTech",
			Description: "Financial Technology Solutions",
			Criteria: common(map[string]string{
				"security":   "Security measures, compliance, and user trust factors",
				"compliance": "Regulatory compliance and financial standards adherence",
			}, "financial"),
			Weights: map[string]float64{
				"innovation": 0.18, "technical": 0.22, "problem_fit": 0.18, "presentation": 0.12,
				"business": 0.15, "demo": 0.08, "security": 0.04, "compliance": 0.03,
			},
		},
		{
			ID:          "healthtech",
			Name:        "HealthTech",
			Description: "Healthcare Technology Solutions",
			Criteria: common(map[string]string{
				"patient_safety": "Patient safety considerations and risk mitigation",
				"data_privacy":   "Healthcare data privacy and HIPAA compliance",
			}, "healthcare"),
			Weights: map[string]float64{
				"innovation": 0.20, "technical": 0.20, "problem_fit": 0.20, "presentation": 0.10,
				"business": 0.12, "demo": 0.08, "patient_safety": 0.06, "data_privacy": 0.04,
			},
		},
		{
			ID:          "edtech",
			Name:        "EdTech",
			Description: "Educational Technology Solutions",
			Criteria: common(map[string]string{
				"learning_effectiveness": "Demonstrated learning outcomes and pedagogical soundness",
				"accessibility":          "Accessibility features and inclusive design principles",
			}, "educational"),
			Weights: map[string]float64{
				"innovation": 0.18, "technical": 0.20, "problem_fit": 0.18, "presentation": 0.12,
				"business": 0.12, "demo": 0.10, "learning_effectiveness": 0.06, "accessibility": 0.04,
			},
		},
		{
			ID:          "ai-ml",
			Name:        "AI/ML",
			Description: "Artificial Intelligence and Machine Learning Solutions",
			Criteria: common(map[string]string{
				"model_performance": "Model accuracy, efficiency, and robustness",
				"data_quality":      "Data quality, preprocessing, and ethical considerations",
			}, "AI/ML"),
			Weights: map[string]float64{
				"innovation": 0.18, "technical": 0.25, "problem_fit": 0.18, "presentation": 0.10,
				"business": 0.12, "demo": 0.08, "model_performance": 0.06, "data_quality": 0.03,
			},
		},
	}
}
