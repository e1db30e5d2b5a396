package session

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/billsplit/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		service     *Service
		scanner     *mockScanner
		flags       *mockFlags
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	do := func(method, path string, body any) *http.Response {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeView := func(resp *http.Response) View {
		defer resp.Body.Close()
		var view View
		Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
		return view
	}

	decodeMap := func(resp *http.Response) map[string]json.RawMessage {
		defer resp.Body.Close()
		var m map[string]json.RawMessage
		Expect(json.NewDecoder(resp.Body).Decode(&m)).To(Succeed())
		return m
	}

	BeforeEach(func() {
		scanner = newMockScanner()
		flags = &mockFlags{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		var err error
		service, err = NewServiceWithDeps(scanner, flags, testOptions())
		Expect(err).NotTo(HaveOccurred())
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleIndex", func() {
		When("request method is GET", func() {
			It("should return HTML containing Bill Splitter", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Bill Splitter"))
			})
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp := do("POST", "/", nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("static assets", func() {
		It("serves the script and stylesheet", func() {
			resp := do("GET", "/static/app.js", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/javascript"))

			resp = do("GET", "/static/app.css", nil)
			resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css"))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp := do("OPTIONS", "/api/state", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp := do("GET", "/api/state", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("input and items", func() {
		It("builds an expression and commits it", func() {
			for _, token := range []string{"1", "2", "000", "*", "2"} {
				resp := do("POST", "/api/input", map[string]string{"token": token})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}

			resp := do("GET", "/api/state", nil)
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			view := decodeView(resp)
			Expect(view.Display).To(Equal("12000 × 2"))
			Expect(view.Preview).To(Equal("24.000\u00a0₫"))

			view = decodeView(do("POST", "/api/items", map[string]bool{"deduction": false}))
			Expect(view.Items).To(HaveLen(1))
			Expect(view.Items[0].Label).To(Equal("Calc: 12000 × 2"))
			Expect(view.TotalFormatted).To(Equal("24.000\u00a0₫"))
			Expect(view.Input).To(BeEmpty())
		})

		It("commits without a body", func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "9"}))
			view := decodeView(do("POST", "/api/items", nil))
			Expect(view.Items).To(HaveLen(1))
			Expect(view.Items[0].Deduction).To(BeFalse())
		})

		It("deletes and clears input", func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "4"}))
			decodeView(do("POST", "/api/input", map[string]string{"token": "2"}))

			view := decodeView(do("DELETE", "/api/input/last", nil))
			Expect(view.Input).To(Equal("4"))

			view = decodeView(do("DELETE", "/api/input", nil))
			Expect(view.Input).To(BeEmpty())
		})

		It("removes items", func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "5"}))
			decodeView(do("POST", "/api/items", map[string]bool{"deduction": true}))

			view := decodeView(do("DELETE", "/api/items/item-1", nil))
			Expect(view.Items).To(BeEmpty())

			resp := do("DELETE", "/api/items/item-1", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects malformed bodies", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/input", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("editing", func() {
		JustBeforeEach(func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "8"}))
			decodeView(do("POST", "/api/items", nil))
		})

		It("returns 404 for an unknown item", func() {
			resp := do("POST", "/api/items/nope/edit", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("runs an edit session", func() {
			view := decodeView(do("POST", "/api/items/item-1/edit", nil))
			Expect(view.Edit).NotTo(BeNil())
			Expect(view.Edit.Draft).To(Equal("8"))

			view = decodeView(do("PATCH", "/api/edit", map[string]string{"draft": "1"}))
			Expect(view.Edit.Draft).To(Equal("1"))

			view = decodeView(do("PUT", "/api/edit", map[string]string{"value": "12"}))
			Expect(view.Edit).To(BeNil())
			Expect(view.Items[0].Formatted).To(Equal("12\u00a0₫"))
		})

		It("rejects an invalid value and keeps the session", func() {
			decodeView(do("POST", "/api/items/item-1/edit", nil))

			resp := do("PUT", "/api/edit", map[string]string{"value": "abc"})
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			body := decodeMap(resp)
			Expect(string(body["error"])).To(ContainSubstring("non-zero number"))

			var state View
			Expect(json.Unmarshal(body["state"], &state)).To(Succeed())
			Expect(state.Edit).NotTo(BeNil())
			Expect(state.Items[0].Formatted).To(Equal("8\u00a0₫"))
		})

		It("cancels the session", func() {
			decodeView(do("POST", "/api/items/item-1/edit", nil))
			view := decodeView(do("DELETE", "/api/edit", nil))
			Expect(view.Edit).To(BeNil())
		})
	})

	Describe("handleReset", func() {
		JustBeforeEach(func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "3"}))
			decodeView(do("POST", "/api/items", nil))
		})

		It("requires confirmation", func() {
			resp := do("POST", "/api/reset", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusPreconditionRequired))
			Expect(service.View().Items).To(HaveLen(1))
		})

		It("clears the bill once confirmed", func() {
			view := decodeView(do("POST", "/api/reset", map[string]bool{"confirm": true}))
			Expect(view.Items).To(BeEmpty())
		})
	})

	Describe("handleSummary", func() {
		It("returns 404 for an empty bill", func() {
			resp := do("GET", "/api/summary", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the summary as plain text", func() {
			decodeView(do("POST", "/api/input", map[string]string{"token": "7"}))
			decodeView(do("POST", "/api/items", nil))

			resp := do("GET", "/api/summary", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HaveSuffix("TOTAL: 7\u00a0₫"))
		})
	})

	Describe("hint", func() {
		It("reports and dismisses the hint", func() {
			resp := do("GET", "/api/hint", nil)
			body := decodeMap(resp)
			Expect(string(body["seen"])).To(Equal("false"))

			resp = do("POST", "/api/hint/dismiss", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(flags.seen).To(BeTrue())

			body = decodeMap(do("GET", "/api/hint", nil))
			Expect(string(body["seen"])).To(Equal("true"))
		})
	})

	Describe("handleScan", func() {
		upload := func(field, filename string, data []byte) *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile(field, filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the scanner finds items", func() {
			BeforeEach(func() {
				scanner.entries = []scanning.Entry{{Amount: "30000", Label: "Coffee"}}
			})

			It("imports them and reports the outcome", func() {
				resp := upload("file", "receipt.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := decodeMap(resp)
				Expect(string(body["kind"])).To(Equal(`"items"`))
				Expect(string(body["message"])).To(ContainSubstring("Imported 1 item"))

				var state View
				Expect(json.Unmarshal(body["state"], &state)).To(Succeed())
				Expect(state.Items).To(HaveLen(1))
				Expect(state.Items[0].Label).To(Equal("Coffee"))
			})
		})

		When("the scan fails", func() {
			BeforeEach(func() {
				scanner.err = scanning.ErrMalformedResponse
			})

			It("reports the failure with status OK and no items", func() {
				resp := upload("file", "receipt.png", []byte("png bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := decodeMap(resp)
				Expect(string(body["kind"])).To(Equal(`"rejected"`))

				var state View
				Expect(json.Unmarshal(body["state"], &state)).To(Succeed())
				Expect(state.Items).To(BeEmpty())
				Expect(state.Scanning).To(BeFalse())
			})
		})

		When("no file is sent", func() {
			It("returns Bad Request", func() {
				resp := upload("other", "receipt.png", []byte("png bytes"))
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})
})

var _ = Describe("uploadContentType", func() {
	DescribeTable("resolves the content type",
		func(declared, filename, expected string) {
			Expect(uploadContentType(declared, filename)).To(Equal(expected))
		},
		Entry("declared type wins", "image/png", "a.jpg", "image/png"),
		Entry("jpeg extension", "", "a.JPG", "image/jpeg"),
		Entry("octet-stream falls back", "application/octet-stream", "a.heic", "image/heic"),
		Entry("pdf", "", "scan.pdf", "application/pdf"),
		Entry("unknown", "", "notes.txt", "application/octet-stream"),
	)
})
