package httpapi

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"school-library/library"
	"school-library/report"
)

// sendPDF renders a document into memory so a renderer error can still
// produce a JSON error response.
func (s *Server) sendPDF(w http.ResponseWriter, r *http.Request, docTitle, filename string, render func(report.Canvas) error) {
	doc := report.NewPDF(docTitle, s.opts.FontPath)
	if err := render(doc); err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) stamp() string { return s.opts.Now().Format("20060102_150405") }

func (s *Server) booksPDF(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := bookFilter(q)
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	cat, err := s.lm.BookCatalog(r.Context(), principal(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendPDF(w, r, "蔵書一覧", "books_"+s.stamp()+".pdf", func(c report.Canvas) error {
		return report.RenderBooks(c, cat, s.opts.Now())
	})
}

func (s *Server) janBarcodePDF(w http.ResponseWriter, r *http.Request) {
	pr := principal(r)
	if !pr.IsAdmin {
		s.fail(w, r, &library.AuthorizationError{Action: "print barcodes"})
		return
	}
	code := newQuery(r).str("jan_code")
	if code == "" {
		s.fail(w, r, &library.ValidationError{Field: "jan_code", Message: "is required"})
		return
	}
	book, err := s.lm.BookByCode(r.Context(), code)
	if err != nil && !library.IsNotFound(err) {
		s.fail(w, r, err)
		return
	}
	s.sendPDF(w, r, "JANコード", "jan_"+code+".pdf", func(c report.Canvas) error {
		return report.RenderJanBarcode(c, code, book)
	})
}

func (s *Server) borrowStatusPDF(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := borrowStatusFilter(q)
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	bs, err := s.lm.BorrowStatus(r.Context(), principal(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendPDF(w, r, "貸出状況一覧", "borrow_status_"+s.stamp()+".pdf", func(c report.Canvas) error {
		return report.RenderBorrowStatus(c, bs, f.Status, s.opts.Now())
	})
}

func (s *Server) dutyPDF(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	start, end, shift := q.date("start_date"), q.date("end_date"), q.str("shift_type")
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	var from, to library.Date
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}
	dl, err := s.lm.DutyLog(r.Context(), principal(r), from, to, shift)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.sendPDF(w, r, "図書当番日誌", "library_duty_"+s.stamp()+".pdf", func(c report.Canvas) error {
		return report.RenderDutyLog(c, dl, s.opts.Now())
	})
}

type usageReportRequest struct {
	ChartImage string `json:"chart_image"`
	Period     string `json:"period" validate:"omitempty,oneof=daily monthly yearly"`
	DataType   string `json:"data_type" validate:"omitempty,oneof=borrow_count user_count both"`
}

func (s *Server) usageStatisticsPDF(w http.ResponseWriter, r *http.Request) {
	var req usageReportRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	us, err := s.lm.UsageStatistics(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var chart *report.ChartImage
	if req.ChartImage != "" {
		png, err := report.DecodeChartImage(req.ChartImage)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		chart = &report.ChartImage{Period: req.Period, DataType: req.DataType, PNG: png}
	}
	s.sendPDF(w, r, "利用統計レポート", "usage_statistics_"+s.stamp()+".pdf", func(c report.Canvas) error {
		return report.RenderUsageStatistics(c, us, chart, s.opts.Now())
	})
}
