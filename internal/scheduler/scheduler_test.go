package scheduler

import (
	"testing"

	"hlfeeder/internal/models"
)

func TestClassRankOrdering(t *testing.T) {
	t.Parallel()

	if classRank(models.ClassHot) >= classRank(models.ClassWarm) {
		t.Fatal("hot should rank before warm")
	}
	if classRank(models.ClassWarm) >= classRank(models.ClassCold) {
		t.Fatal("warm should rank before cold")
	}
}
