package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveVectorCall(t *testing.T) {
	success := testutil.ToFloat64(VectorCallsTotal.WithLabelValues("query", "success"))
	failure := testutil.ToFloat64(VectorCallsTotal.WithLabelValues("query", "error"))

	ObserveVectorCall("query", time.Now(), nil)
	ObserveVectorCall("query", time.Now(), errors.New("boom"))
	ObserveVectorCall("query", time.Now(), nil)

	assert.Equal(t, success+2, testutil.ToFloat64(VectorCallsTotal.WithLabelValues("query", "success")))
	assert.Equal(t, failure+1, testutil.ToFloat64(VectorCallsTotal.WithLabelValues("query", "error")))
}
