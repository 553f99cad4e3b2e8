package ingest_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/ingest"
)

var _ = Describe("HTTP ingestion", func() {
	var (
		st      *fakeStore
		handler http.Handler
	)

	BeforeEach(func() {
		st = &fakeStore{}
		handler = newService(st, nil, nil).HTTPHandler()
	})

	get := func(query string) (*httptest.ResponseRecorder, map[string]any) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data?"+query, nil))

		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		return rec, body
	}

	It("should store a valid reading", func() {
		rec, body := get("id=device-001&user_id=user-1&hr=72&temp=36.6&spo2=98")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]any{"success": true}))

		rows := st.Rows()
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].DeviceID).To(Equal("device-001"))
		Expect(rows[0].Temp).To(Equal(36.6))
	})

	It("should truncate decimal integers", func() {
		rec, _ := get("id=device-001&user_id=user-1&hr=72.9&temp=36.6&spo2=98.4")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(st.Rows()[0].HR).To(Equal(72))
		Expect(st.Rows()[0].SpO2).To(Equal(98))
	})

	DescribeTable("should reject invalid requests",
		func(query string) {
			rec, body := get(query)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal(ingest.MsgInvalidRequest))
			Expect(st.Rows()).To(BeEmpty())
		},
		Entry("no parameters", ""),
		Entry("missing user", "id=device-001&hr=72&temp=36.6&spo2=98"),
		Entry("missing device", "user_id=user-1&hr=72&temp=36.6&spo2=98"),
		Entry("unparsable heart rate", "id=device-001&user_id=user-1&hr=abc&temp=36.6&spo2=98"),
		Entry("zero temperature", "id=device-001&user_id=user-1&hr=72&temp=0&spo2=98"),
		Entry("spo2 out of range", "id=device-001&user_id=user-1&hr=72&temp=36.6&spo2=101"),
	)

	It("should answer database errors with 500", func() {
		st.err = errors.New("connection refused")

		rec, body := get("id=device-001&user_id=user-1&hr=72&temp=36.6&spo2=98")
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(body["error"]).To(Equal(ingest.MsgDatabaseError))
	})
})

var _ = DescribeTable("ParseInt",
	func(in string, want int) {
		Expect(ingest.ParseInt(in)).To(Equal(want))
	},
	Entry("plain", "72", 72),
	Entry("decimal", "72.9", 72),
	Entry("suffix", "72bpm", 72),
	Entry("leading space", "  72", 72),
	Entry("negative", "-5", -5),
	Entry("empty", "", 0),
	Entry("garbage", "abc", 0),
)

var _ = DescribeTable("ParseFloat",
	func(in string, want float64) {
		Expect(ingest.ParseFloat(in)).To(Equal(want))
	},
	Entry("plain", "36.6", 36.6),
	Entry("integer", "37", 37.0),
	Entry("suffix", "36.6C", 36.6),
	Entry("leading dot", ".5", 0.5),
	Entry("empty", "", 0.0),
	Entry("garbage", "warm", 0.0),
)
