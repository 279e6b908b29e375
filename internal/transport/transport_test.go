package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/replica-failover/internal/fault"
	"github.com/angeloszaimis/replica-failover/internal/transport"
)

var _ = Describe("Transport", func() {
	var (
		server *httptest.Server
		client *http.Client
	)

	BeforeEach(func() {
		client = transport.NewHTTPClient(2 * time.Second)
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("Send", func() {
		It("should set the configured Origin header", func() {
			var origin string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				origin = r.Header.Get("Origin")
			}))

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := transport.New(client, "http://www.example.com").Send(req)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)
			Expect(origin).To(Equal("http://www.example.com"))
		})

		It("should not overwrite an Origin set by the caller", func() {
			var origin string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				origin = r.Header.Get("Origin")
			}))

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			req.Header.Set("Origin", "http://caller.example.com")
			resp, err := transport.New(client, "http://www.example.com").Send(req)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)
			Expect(origin).To(Equal("http://caller.example.com"))
		})

		It("should classify a refused connection as a network failure", func() {
			server = httptest.NewServer(http.NotFoundHandler())
			url := server.URL
			server.Close()
			server = nil

			req, _ := http.NewRequest(http.MethodGet, url, nil)
			_, err := transport.New(client, "").Send(req)
			Expect(fault.KindOf(err)).To(Equal(fault.KindNetwork))
			Expect(errors.Is(err, fault.ErrNetwork)).To(BeTrue())
		})

		It("should classify a client timeout as a timeout", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))
			client.Timeout = 30 * time.Millisecond

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			_, err := transport.New(client, "").Send(req)
			Expect(fault.KindOf(err)).To(Equal(fault.KindTimeout))
		})

		It("should classify caller cancellation as canceled", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			}))

			ctx, cancel := context.WithCancel(context.Background())
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()

			_, err := transport.New(client, "").Send(req)
			Expect(fault.KindOf(err)).To(Equal(fault.KindCanceled))
		})

		It("should classify an unsupported scheme as internal", func() {
			req, _ := http.NewRequest(http.MethodGet, "gopher://localhost:70/", nil)
			_, err := transport.New(client, "").Send(req)
			Expect(err).To(HaveOccurred())
			Expect(fault.KindOf(err)).To(Equal(fault.KindInternal))
		})
	})

	Describe("NewHTTPClient", func() {
		It("should not remember cookies between requests", func() {
			var seen string
			setter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
			}))
			defer setter.Close()
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.Header.Get("Cookie")
			}))

			Expect(client.Jar).To(BeNil())

			resp, err := client.Get(setter.URL)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)

			resp, err = client.Get(server.URL)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)
			Expect(seen).To(BeEmpty())
		})
	})

	Describe("NewSessionClient", func() {
		BeforeEach(func() {
			var err error
			client, err = transport.NewSessionClient(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should send cookies set by one replica to another port on the same host", func() {
			var seen string
			setter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
			}))
			defer setter.Close()
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c, err := r.Cookie("session_id"); err == nil {
					seen = c.Value
				}
			}))

			resp, err := client.Get(setter.URL)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)

			resp, err = client.Get(server.URL)
			Expect(err).NotTo(HaveOccurred())
			transport.Drain(resp)
			Expect(seen).To(Equal("abc"))
		})
	})

	Describe("Classify", func() {
		It("should return nil for nil", func() {
			Expect(transport.Classify(nil)).To(BeNil())
		})

		It("should keep errors that are already classified", func() {
			orig := fault.NoReplica(3)
			Expect(transport.Classify(orig)).To(BeIdenticalTo(orig))
		})

		DescribeTable("kinds",
			func(err error, kind fault.Kind) {
				Expect(fault.KindOf(transport.Classify(err))).To(Equal(kind))
			},
			Entry("unexpected EOF", io.ErrUnexpectedEOF, fault.KindNetwork),
			Entry("EOF", io.EOF, fault.KindNetwork),
			Entry("deadline", context.DeadlineExceeded, fault.KindTimeout),
			Entry("canceled", context.Canceled, fault.KindCanceled),
			Entry("programming error", errors.New("index out of range"), fault.KindInternal),
		)
	})

	Describe("Drain", func() {
		It("should tolerate nil responses", func() {
			Expect(func() { transport.Drain(nil) }).NotTo(Panic())
		})

		It("should close the body", func() {
			body := &trackingBody{Reader: strings.NewReader("left over")}
			transport.Drain(&http.Response{Body: body})
			Expect(body.closed).To(BeTrue())
		})
	})

	DescribeTable("IsSuccess",
		func(code int, ok bool) {
			Expect(transport.IsSuccess(code)).To(Equal(ok))
		},
		Entry("200", 200, true),
		Entry("204", 204, true),
		Entry("199", 199, false),
		Entry("301", 301, false),
		Entry("401", 401, false),
		Entry("503", 503, false),
	)
})

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}
