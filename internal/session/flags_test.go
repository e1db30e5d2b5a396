package session

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltFlags", func() {
	var (
		path  string
		flags *BoltFlags
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "flags.db")
		var err error
		flags, err = NewBoltFlags(path)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if flags != nil {
			flags.Close()
		}
	})

	It("starts with the hint unseen", func() {
		seen, err := flags.HintSeen()
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeFalse())
	})

	It("records the hint as seen", func() {
		Expect(flags.MarkHintSeen()).To(Succeed())
		seen, err := flags.HintSeen()
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("keeps the flag across reopen", func() {
		Expect(flags.MarkHintSeen()).To(Succeed())
		Expect(flags.Close()).To(Succeed())

		reopened, err := NewBoltFlags(path)
		Expect(err).NotTo(HaveOccurred())
		flags = reopened

		seen, err := flags.HintSeen()
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("fails for an unusable path", func() {
		_, err := NewBoltFlags(filepath.Join(GinkgoT().TempDir(), "missing", "flags.db"))
		Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
	})

	It("feeds the service hint state", func() {
		Expect(flags.MarkHintSeen()).To(Succeed())
		service, err := NewService(newMockScanner(), flags)
		Expect(err).NotTo(HaveOccurred())
		Expect(service.HintSeen()).To(BeTrue())
	})
})
