package operator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/storage/inmemory"
)

var _ = Describe("Stores", func() {
	var (
		opened  []string
		stores  *operator.Stores
		drivers map[string]*inmemory.Driver
	)

	BeforeEach(func() {
		opened = nil
		drivers = map[string]*inmemory.Driver{}
		stores = operator.NewStores(func(_ context.Context, identity string) (*operator.Store, error) {
			if identity == "broken" {
				return nil, errors.New("boom")
			}
			opened = append(opened, identity)
			d, ok := drivers[identity]
			if !ok {
				d = inmemory.NewDriver()
				drivers[identity] = d
			}
			return operator.NewStore(identity, d, nil), nil
		})
	})

	It("shares one store per identity while it is held", func(ctx SpecContext) {
		a, releaseA, err := stores.Acquire(ctx, "coordinator-1")
		Expect(err).NotTo(HaveOccurred())
		b, releaseB, err := stores.Acquire(ctx, "coordinator-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeIdenticalTo(b))
		Expect(opened).To(Equal([]string{"coordinator-1"}))

		Expect(releaseA()).To(Succeed())
		Expect(stores.Open()).To(Equal(1))
		Expect(releaseB()).To(Succeed())
		Expect(stores.Open()).To(BeZero())
	})

	It("isolates identities", func(ctx SpecContext) {
		a, releaseA, err := stores.Acquire(ctx, "coordinator-1")
		Expect(err).NotTo(HaveOccurred())
		defer releaseA()
		b, releaseB, err := stores.Acquire(ctx, "coordinator-2")
		Expect(err).NotTo(HaveOccurred())
		defer releaseB()

		Expect(a).NotTo(BeIdenticalTo(b))
		Expect(a.Identity).To(Equal("coordinator-1"))
	})

	It("ignores a second release", func(ctx SpecContext) {
		_, release, err := stores.Acquire(ctx, "coordinator-1")
		Expect(err).NotTo(HaveOccurred())
		_, other, err := stores.Acquire(ctx, "coordinator-1")
		Expect(err).NotTo(HaveOccurred())

		Expect(release()).To(Succeed())
		Expect(release()).To(Succeed())
		Expect(stores.Open()).To(Equal(1))
		Expect(other()).To(Succeed())
	})

	It("surfaces open errors", func(ctx SpecContext) {
		_, _, err := stores.Acquire(ctx, "broken")
		Expect(err).To(MatchError(ContainSubstring("boom")))

		_, _, err = stores.Acquire(ctx, "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Stores under concurrency", func() {
	It("opens an identity once for concurrent first acquisitions", func(ctx SpecContext) {
		var opens atomic.Int32
		gate := make(chan struct{})
		stores := operator.NewStores(func(_ context.Context, identity string) (*operator.Store, error) {
			opens.Add(1)
			<-gate
			return operator.NewStore(identity, inmemory.NewDriver(), nil), nil
		})

		const n = 8
		var (
			wg       sync.WaitGroup
			got      = make([]*operator.Store, n)
			releases = make([]func() error, n)
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				s, release, err := stores.Acquire(ctx, "coordinator-1")
				Expect(err).NotTo(HaveOccurred())
				got[i], releases[i] = s, release
			}()
		}

		Eventually(opens.Load).Should(Equal(int32(1)))
		time.Sleep(20 * time.Millisecond)
		close(gate)
		wg.Wait()

		Expect(opens.Load()).To(Equal(int32(1)))
		for _, s := range got {
			Expect(s).To(BeIdenticalTo(got[0]))
		}
		for _, release := range releases {
			Expect(release()).To(Succeed())
		}
		Expect(stores.Open()).To(BeZero())
	})

	It("does not block other identities while one is opening", func(ctx SpecContext) {
		gate := make(chan struct{})
		defer close(gate)
		stores := operator.NewStores(func(_ context.Context, identity string) (*operator.Store, error) {
			if identity == "slow" {
				<-gate
			}
			return operator.NewStore(identity, inmemory.NewDriver(), nil), nil
		})

		go func() {
			_, _, _ = stores.Acquire(context.Background(), "slow")
		}()

		_, release, err := stores.Acquire(ctx, "fast")
		Expect(err).NotTo(HaveOccurred())
		Expect(release()).To(Succeed())
	}, SpecTimeout(5*time.Second))
})

var _ = Describe("StoreName", func() {
	It("is stable per identity", func() {
		Expect(operator.StoreName("coordinator-1")).To(Equal(operator.StoreName("coordinator-1")))
		Expect(operator.StoreName("coordinator-1")).NotTo(Equal(operator.StoreName("coordinator-2")))
	})

	It("is safe as a file or schema name", func() {
		Expect(operator.StoreName("https://coord.example/a b")).To(MatchRegexp(`^c_[0-9a-f]{16}$`))
	})
})
