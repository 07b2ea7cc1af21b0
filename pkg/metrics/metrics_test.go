package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/metrics"
)

var _ = Describe("Handler", func() {
	It("exposes recorded collectors", func() {
		metrics.ObserveOperatorRequest("create", http.StatusConflict, 20*time.Millisecond)
		metrics.ObserveOperation("read", metrics.ResultTimeout, 5*time.Second)
		metrics.ObserveReward(0.75)
		metrics.SetAccountedStorage(4096)

		rec := httptest.NewRecorder()
		metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		body, err := io.ReadAll(rec.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`vectorvault_operator_requests_total{kind="create",status="4xx"}`))
		Expect(string(body)).To(ContainSubstring(`vectorvault_coordinator_operations_total{kind="read",result="timeout"}`))
		Expect(string(body)).To(ContainSubstring("vectorvault_coordinator_accounted_storage_bytes 4096"))
		Expect(string(body)).To(ContainSubstring("vectorvault_coordinator_cycle_reward_count"))
	})
})
