package shardarc_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/bsm/shardarc"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("RangeIndex", func() {
	var subject *shardarc.RangeIndex

	BeforeEach(func() {
		var err error
		subject, err = shardarc.ParseRangeIndex([]byte(`{
			// mappings may be listed in any order
			"svc": [
				{"file": "svc/f2", "start": "a", "stop": "z"},
				{"file": "svc/f1", "start": "0", "stop": "9"},
				{"file": "svc/f3", "start": "00", "stop": "ZZZ"},
			],
			"single": [{"file": "single/all"}],
		}`))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.Services()).To(Equal([]string{"single", "svc"}))
		Expect(subject.Mappings("svc")).To(HaveLen(3))
		Expect(subject.Mappings("missing")).To(BeEmpty())
	})

	It("should sort mappings by start", func() {
		var files []string
		for _, m := range subject.Mappings("svc") {
			Expect(m.Bounded()).To(BeTrue())
			files = append(files, m.File)
		}
		Expect(files).To(Equal([]string{"svc/f1", "svc/f2", "svc/f3"}))
	})

	It("should resolve", func() {
		Expect(subject.Resolve("svc", "5")).To(HaveField("File", "svc/f1"))
		Expect(subject.Resolve("svc", "g")).To(HaveField("File", "svc/f2"))
		Expect(subject.Resolve("svc", "0")).To(HaveField("File", "svc/f1"))
		Expect(subject.Resolve("svc", "9")).To(HaveField("File", "svc/f1"))
		Expect(subject.Resolve("svc", "z")).To(HaveField("File", "svc/f2"))
		Expect(subject.Resolve("svc", "aB")).To(HaveField("File", "svc/f3"))
		Expect(subject.Resolve("svc", "ZZZ")).To(HaveField("File", "svc/f3"))
	})

	It("should resolve every declared bound", func() {
		for _, m := range subject.Mappings("svc") {
			Expect(subject.Resolve("svc", m.Start)).To(Equal(m))
			Expect(subject.Resolve("svc", m.Stop)).To(Equal(m))
		}
	})

	It("should fail to resolve uncovered codes", func() {
		_, err := subject.Resolve("svc", "A")
		Expect(err).To(MatchError(shardarc.ErrNotFound))
		Expect(err).To(MatchError(`shardarc: not found: no mapping for service 'svc', code 'A'`))

		_, err = subject.Resolve("svc", "0000")
		Expect(err).To(MatchError(shardarc.ErrNotFound))

		_, err = subject.Resolve("missing", "a")
		Expect(err).To(MatchError(`shardarc: not found: unknown service 'missing'`))
	})

	It("should resolve single-file services", func() {
		m, err := subject.Resolve("single", "anyTHING0")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.File).To(Equal("single/all"))
		Expect(m.Bounded()).To(BeFalse())
	})

	It("should check whether codes are still in range", func() {
		m, err := subject.Resolve("svc", "b")
		Expect(err).NotTo(HaveOccurred())

		Expect(subject.StillInRange(m, "b")).To(BeTrue())
		Expect(subject.StillInRange(m, "z")).To(BeTrue())
		Expect(subject.StillInRange(m, "A")).To(BeFalse())
		Expect(subject.StillInRange(m, "00")).To(BeFalse())

		single, err := subject.Resolve("single", "b")
		Expect(err).NotTo(HaveOccurred())
		Expect(subject.StillInRange(single, "ZZZZZZZZ")).To(BeTrue())
	})

	It("should find services by file", func() {
		Expect(subject.ServiceFor("svc/f3")).To(Equal("svc"))
		Expect(subject.ServiceFor("single/all")).To(Equal("single"))

		_, err := subject.ServiceFor("svc/f4")
		Expect(err).To(MatchError(shardarc.ErrNotFound))
	})

	It("should parse YAML", func() {
		idx, err := shardarc.ParseRangeIndexYAML([]byte(`
svc:
  - {file: svc/b, start: a, stop: z}
  - {file: svc/a, start: 0, stop: 9}
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Resolve("svc", "3")).To(HaveField("File", "svc/a"))
		Expect(idx.Resolve("svc", "q")).To(HaveField("File", "svc/b"))
	})

	It("should load from files", func() {
		dir := tempDir()
		defer os.RemoveAll(dir)

		jsonPath := filepath.Join(dir, "ranges.json")
		Expect(os.WriteFile(jsonPath, []byte(`{"svc": [{"file": "a"}]}`), 0o644)).To(Succeed())
		idx, err := shardarc.LoadRangeIndex(jsonPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.ServiceFor("a")).To(Equal("svc"))

		yamlPath := filepath.Join(dir, "ranges.yml")
		Expect(os.WriteFile(yamlPath, []byte("svc:\n  - file: b\n"), 0o644)).To(Succeed())
		idx, err = shardarc.LoadRangeIndex(yamlPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.ServiceFor("b")).To(Equal("svc"))

		_, err = shardarc.LoadRangeIndex(filepath.Join(dir, "missing.json"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	Describe("validation", func() {
		problems := func(data string) []string {
			_, err := shardarc.ParseRangeIndex([]byte(data))
			Expect(err).To(HaveOccurred())

			var cerr *shardarc.ConfigError
			Expect(errors.As(err, &cerr)).To(BeTrue(), "unexpected %v", err)
			return cerr.Problems
		}

		It("should reject overlaps", func() {
			Expect(problems(`{"svc": [
				{"file": "a", "start": "a", "stop": "m"},
				{"file": "b", "start": "g", "stop": "z"}
			]}`)).To(ConsistOf(`overlap detected for service 'svc', code 'm'`))
		})

		It("should reject touching ranges", func() {
			Expect(problems(`{"svc": [
				{"file": "a", "start": "a", "stop": "m"},
				{"file": "b", "start": "m", "stop": "z"}
			]}`)).To(ConsistOf(`overlap detected for service 'svc', code 'm'`))
		})

		It("should reject identical starts", func() {
			Expect(problems(`{"svc": [
				{"file": "a", "start": "a", "stop": "a"},
				{"file": "b", "start": "a", "stop": "z"}
			]}`)).To(ConsistOf(`overlap detected for service 'svc', code 'a'`))
		})

		It("should reject duplicate files", func() {
			Expect(problems(`{
				"s1": [{"file": "x"}],
				"s2": [{"file": "x"}]
			}`)).To(ConsistOf(`duplicate output file 'x' in services 's1' and 's2'`))
		})

		It("should reject missing bounds", func() {
			Expect(problems(`{"svc": [
				{"file": "a", "start": "a"},
				{"file": "b", "start": "b", "stop": "z"}
			]}`)).To(ConsistOf(`start or stop not given for service 'svc', mapping 1`))
		})

		It("should reject missing files", func() {
			Expect(problems(`{"svc": [
				{"start": "a", "stop": "b"},
				{"file": "b", "start": "c", "stop": "z"}
			]}`)).To(ConsistOf(`no file specified for service 'svc', mapping 1`))
		})

		It("should only report the missing file of empty single mappings", func() {
			Expect(problems(`{"svc": [{}]}`)).To(ConsistOf(`no file specified for service 'svc', mapping 1`))
		})

		It("should reject additional data", func() {
			Expect(problems(`{
				"one": [{"file": "a", "start": "a", "stop": "z"}],
				"two": [
					{"file": "b", "start": "a", "stop": "b", "note": "x"},
					{"file": "c", "start": "c", "stop": "z"}
				]
			}`)).To(ConsistOf(
				`additional data for service 'one', mapping 1`,
				`additional data for service 'two', mapping 1`,
			))
		})

		It("should reject inverted ranges", func() {
			Expect(problems(`{"svc": [
				{"file": "a", "start": "A", "stop": "a"},
				{"file": "b", "start": "00", "stop": "zz"}
			]}`)).To(ConsistOf(`start is bigger than stop for service 'svc', mapping 1`))
		})

		It("should reject invalid codes and empty services", func() {
			Expect(problems(`{
				"bad": [
					{"file": "a", "start": "a-", "stop": "z"},
					{"file": "b", "start": "00", "stop": "zz"}
				],
				"empty": []
			}`)).To(ConsistOf(
				`invalid code bounds for service 'bad', mapping 1`,
				`no mappings for service 'empty'`,
			))
		})

		It("should report problems of all services", func() {
			_, err := shardarc.ParseRangeIndex([]byte(`{
				"a": [{"file": "a", "start": "0", "stop": "5"}, {"file": "b", "start": "3", "stop": "9"}],
				"b": [{"file": "c", "start": "z", "stop": "a"}, {"file": "d", "start": "A", "stop": "Z"}]
			}`))
			Expect(err).To(MatchError(`shardarc: invalid range table: ` +
				`overlap detected for service 'a', code '5'; ` +
				`start is bigger than stop for service 'b', mapping 1`))
		})

		It("should reject malformed input", func() {
			_, err := shardarc.ParseRangeIndex([]byte(`{"svc": [{"file": 1}]}`))
			Expect(err).To(MatchError(ContainSubstring("shardarc: parse range table")))

			_, err = shardarc.ParseRangeIndex([]byte(`[]`))
			Expect(err).To(HaveOccurred())
		})
	})
})
