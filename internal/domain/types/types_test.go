package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/pitchjudge/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSubmissionJSON(t *testing.T) {
	Convey("Given a submission still in the pipeline", t, func() {
		sub := types.Submission{ID: "s1", DomainID: "fintech", TeamName: "Ledger", Status: "processing"}

		Convey("Then unscored fields are left out", func() {
			raw, err := json.Marshal(sub)
			So(err, ShouldBeNil)

			var fields map[string]any
			So(json.Unmarshal(raw, &fields), ShouldBeNil)
			So(fields["status"], ShouldEqual, "processing")
			So(fields, ShouldNotContainKey, "weighted_score")
			So(fields, ShouldNotContainKey, "rank")
			So(fields, ShouldNotContainKey, "evaluation")
			So(fields, ShouldNotContainKey, "completed_at")
		})
	})

	Convey("Given a ranked submission", t, func() {
		rank, pct, weighted := 1, 100.0, 7.0
		sub := types.Submission{ID: "s1", Status: "completed", WeightedScore: &weighted, Rank: &rank, Percentile: &pct, Grade: "B"}

		Convey("Then its score and placement are present", func() {
			raw, err := json.Marshal(sub)
			So(err, ShouldBeNil)

			var fields map[string]any
			So(json.Unmarshal(raw, &fields), ShouldBeNil)
			So(fields["weighted_score"], ShouldEqual, 7.0)
			So(fields["rank"], ShouldEqual, 1.0)
			So(fields["percentile"], ShouldEqual, 100.0)
			So(fields["grade"], ShouldEqual, "B")
		})
	})
}

func TestStandingJSON(t *testing.T) {
	Convey("Given an unranked standing", t, func() {
		raw, err := json.Marshal(types.Standing{SubmissionID: "s2", TeamName: "Ward"})
		So(err, ShouldBeNil)

		Convey("Then rank and percentile are explicit nulls", func() {
			So(string(raw), ShouldContainSubstring, `"rank":null`)
			So(string(raw), ShouldContainSubstring, `"percentile":null`)
		})
	})
}
