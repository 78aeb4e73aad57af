//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fediwatch/mentiond/internal/domain"
	"github.com/fediwatch/mentiond/internal/infra"
)

var _ = Describe("Daemon Lease", func() {
	var leasePath string

	BeforeEach(func() {
		leasePath = filepath.Join(GinkgoT().TempDir(), "lease.json")
	})

	Context("when a live daemon holds the lease", func() {
		It("rejects a second acquisition and keeps the first record intact", func() {
			pm := infra.NewProcessManager()
			store := infra.NewFileLeaseStore(leasePath, pm)

			// The test process itself plays the daemon: its pid is alive.
			release, err := store.Acquire(os.Getpid())
			Expect(err).NotTo(HaveOccurred())
			defer release()

			second := infra.NewFileLeaseStore(leasePath, pm)
			_, err = second.Acquire(os.Getpid() + 1)
			Expect(err).To(MatchError(domain.ErrAlreadyRunning))

			lease, err := store.Current()
			Expect(err).NotTo(HaveOccurred())
			Expect(lease.PID).To(Equal(os.Getpid()))
		})
	})

	Context("after the holder releases", func() {
		It("leaves no artifact and allows reacquisition", func() {
			pm := infra.NewProcessManager()
			store := infra.NewFileLeaseStore(leasePath, pm)

			release, err := store.Acquire(os.Getpid())
			Expect(err).NotTo(HaveOccurred())
			release()

			lease, err := store.Current()
			Expect(err).NotTo(HaveOccurred())
			Expect(lease).To(BeNil())

			release2, err := store.Acquire(os.Getpid())
			Expect(err).NotTo(HaveOccurred())
			release2()
		})
	})
})
