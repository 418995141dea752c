package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/pitchjudge/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCanTransition(t *testing.T) {
	Convey("Given the submission state machine", t, func() {
		Convey("Forward edges are allowed", func() {
			So(model.CanTransition(model.StatusUploaded, model.StatusProcessing), ShouldBeTrue)
			So(model.CanTransition(model.StatusProcessing, model.StatusProcessed), ShouldBeTrue)
			So(model.CanTransition(model.StatusProcessed, model.StatusEvaluating), ShouldBeTrue)
			So(model.CanTransition(model.StatusEvaluating, model.StatusEvaluated), ShouldBeTrue)
			So(model.CanTransition(model.StatusEvaluated, model.StatusCompleted), ShouldBeTrue)
		})

		Convey("Skipping a state is rejected", func() {
			So(model.CanTransition(model.StatusUploaded, model.StatusProcessed), ShouldBeFalse)
			So(model.CanTransition(model.StatusProcessed, model.StatusCompleted), ShouldBeFalse)
		})

		Convey("Rollback to the pre-stage status is allowed", func() {
			So(model.CanTransition(model.StatusProcessing, model.StatusUploaded), ShouldBeTrue)
			So(model.CanTransition(model.StatusEvaluating, model.StatusProcessed), ShouldBeTrue)
		})

		Convey("Error states are reachable from every active state only", func() {
			for _, s := range []model.Status{
				model.StatusUploaded, model.StatusProcessing, model.StatusProcessed,
				model.StatusEvaluating, model.StatusEvaluated,
			} {
				So(model.CanTransition(s, model.StatusError), ShouldBeTrue)
				So(model.CanTransition(s, model.StatusEvaluationError), ShouldBeTrue)
			}
			So(model.CanTransition(model.StatusCompleted, model.StatusError), ShouldBeFalse)
			So(model.CanTransition(model.StatusError, model.StatusEvaluationError), ShouldBeFalse)
		})

		Convey("Unknown statuses never move", func() {
			So(model.Status("archived").Valid(), ShouldBeFalse)
			So(model.StatusEvaluated.Valid(), ShouldBeTrue)
			So(model.CanTransition(model.Status("archived"), model.StatusError), ShouldBeFalse)
			So(model.CanTransition(model.StatusUploaded, model.Status("archived")), ShouldBeFalse)
		})

		Convey("Terminal states never move", func() {
			So(model.CanTransition(model.StatusError, model.StatusUploaded), ShouldBeFalse)
			So(model.CanTransition(model.StatusEvaluationError, model.StatusProcessed), ShouldBeFalse)
			So(model.StatusError.Terminal(), ShouldBeTrue)
			So(model.StatusCompleted.Terminal(), ShouldBeFalse)
			So(model.StatusCompleted.Active(), ShouldBeFalse)
		})
	})
}

func TestDomainValidateWeights(t *testing.T) {
	Convey("Given a domain", t, func() {
		d := &model.Domain{ID: "fintech", Weights: map[string]float64{"innovation": 0.5, "technical": 0.5}}

		Convey("Weights summing to one are valid", func() {
			So(d.ValidateWeights(), ShouldBeNil)
			So(d.WeightSum(), ShouldAlmostEqual, 1.0)
		})

		Convey("Drift within tolerance is accepted", func() {
			d.Weights["technical"] = 0.505
			So(d.ValidateWeights(), ShouldBeNil)
		})

		Convey("Drift beyond tolerance is rejected", func() {
			d.Weights["technical"] = 0.6
			err := d.ValidateWeights()
			So(errors.Is(err, model.ErrInvalidWeights), ShouldBeTrue)
		})

		Convey("Empty weights are rejected", func() {
			d.Weights = nil
			So(errors.Is(d.ValidateWeights(), model.ErrInvalidWeights), ShouldBeTrue)
		})
	})
}

func TestVerdictValidate(t *testing.T) {
	Convey("Given a judge response", t, func() {
		complete := `{
			"overall_analysis": {"presentation_flow_score": 8, "completeness_score": 7, "consistency_score": 9, "total_slides_analyzed": 12},
			"criteria_scores": {"innovation": 8, "technical": 6},
			"detailed_feedback": {"strengths": ["clear"], "weaknesses": [], "suggestions": []},
			"executive_summary": "solid"
		}`

		Convey("A complete response passes", func() {
			var v model.Verdict
			So(json.Unmarshal([]byte(complete), &v), ShouldBeNil)
			So(v.Validate(), ShouldBeNil)
			So(*v.OverallAnalysis.PresentationFlowScore, ShouldEqual, 8)
		})

		Convey("Each missing required field is a contract violation", func() {
			for _, field := range []string{"overall_analysis", "criteria_scores", "detailed_feedback", "executive_summary"} {
				var raw map[string]any
				So(json.Unmarshal([]byte(complete), &raw), ShouldBeNil)
				delete(raw, field)
				b, _ := json.Marshal(raw)

				var v model.Verdict
				So(json.Unmarshal(b, &v), ShouldBeNil)
				err := v.Validate()
				So(errors.Is(err, model.ErrContractViolation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, field)
			}
		})

		Convey("An empty executive summary is present and passes", func() {
			var v model.Verdict
			So(json.Unmarshal([]byte(`{"overall_analysis": {}, "criteria_scores": {"a": 5},
				"detailed_feedback": {}, "executive_summary": ""}`), &v), ShouldBeNil)
			So(v.Validate(), ShouldBeNil)
			So(model.NewEvaluation("e1", "s1", &v, 1, 0, nil).ExecutiveSummary, ShouldEqual, "")
		})

		Convey("A nil verdict is a contract violation", func() {
			var v *model.Verdict
			So(errors.Is(v.Validate(), model.ErrContractViolation), ShouldBeTrue)
		})

		Convey("Absent quality scores are carried as nil", func() {
			var v model.Verdict
			So(json.Unmarshal([]byte(`{"overall_analysis": {}, "criteria_scores": {"a": 5},
				"detailed_feedback": {}, "executive_summary": "x"}`), &v), ShouldBeNil)
			So(v.Validate(), ShouldBeNil)
			e := model.NewEvaluation("e1", "s1", &v, 3, 0, nil)
			So(e.ConsistencyScore, ShouldBeNil)
			So(e.CriteriaScores["a"], ShouldEqual, 5)
			So(e.SlideCount, ShouldEqual, 3)
		})
	})
}

func TestTaskReady(t *testing.T) {
	Convey("Given a task delayed until noon", t, func() {
		noon := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		task := model.Task{Stage: model.StageEvaluate, Subject: "s1", NotBefore: noon}

		So(task.Ready(noon.Add(-time.Second)), ShouldBeFalse)
		So(task.Ready(noon), ShouldBeTrue)
		So(task.Ready(noon.Add(time.Second)), ShouldBeTrue)
		So(model.Task{}.Ready(noon), ShouldBeTrue)
	})
}
