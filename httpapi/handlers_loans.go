package httpapi

import (
	"net/http"

	"school-library/library"
)

type checkoutRequest struct {
	BookID       int64  `json:"book_id" validate:"required,gt=0"`
	MemberID     int64  `json:"student_id" validate:"required,gt=0"`
	BorrowedDate string `json:"borrowed_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate      string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type batchCheckoutRequest struct {
	BookIDs      []int64 `json:"book_ids" validate:"required,min=1,dive,gt=0"`
	MemberID     int64   `json:"student_id" validate:"required,gt=0"`
	BorrowedDate string  `json:"borrowed_date" validate:"omitempty,datetime=2006-01-02"`
}

type batchReturnRequest struct {
	LoanIDs []int64 `json:"borrow_ids" validate:"required,min=1,dive,gt=0"`
}

type loanEditRequest struct {
	BorrowedDate string `json:"borrowed_date" validate:"required,datetime=2006-01-02"`
	DueDate      string `json:"due_date" validate:"required,datetime=2006-01-02"`
	ReturnedDate string `json:"returned_date" validate:"omitempty,datetime=2006-01-02"`
}

// checkoutDates parses the optional dates of a checkout body.
func checkoutDates(borrowed, due string) (library.Date, *library.Date, error) {
	b, err := optionalDate("borrowed_date", borrowed)
	if err != nil {
		return library.Date{}, nil, err
	}
	d, err := optionalDate("due_date", due)
	if err != nil {
		return library.Date{}, nil, err
	}
	if b == nil {
		return library.Date{}, d, nil
	}
	return *b, d, nil
}

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	borrowed, due, err := checkoutDates(req.BorrowedDate, req.DueDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loans, err := s.lm.Checkout(r.Context(), principal(r), library.CheckoutRequest{
		MemberID:     req.MemberID,
		BookIDs:      []int64{req.BookID},
		BorrowedDate: borrowed,
		DueDate:      due,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "貸出を登録しました", Data: loans[0]})
}

func (s *Server) batchCheckout(w http.ResponseWriter, r *http.Request) {
	var req batchCheckoutRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	borrowed, _, err := checkoutDates(req.BorrowedDate, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loans, err := s.lm.Checkout(r.Context(), principal(r), library.CheckoutRequest{
		MemberID:     req.MemberID,
		BookIDs:      req.BookIDs,
		BorrowedDate: borrowed,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "貸出を登録しました", Data: loans})
}

func (s *Server) batchReturn(w http.ResponseWriter, r *http.Request) {
	var req batchReturnRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.lm.ReturnLoans(r.Context(), principal(r), req.LoanIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) returnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.lm.ReturnLoan(r.Context(), principal(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "返却しました", Data: loan})
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := library.LoanFilter{
		MemberID: q.int64("student_id"),
		BookID:   q.int64("book_id"),
		Status:   q.str("status"),
		Search:   q.str("search"),
	}
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListLoans(r.Context(), principal(r), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) recentLoans(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	limit := q.int("limit")
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	if limit <= 0 {
		limit = 10
	}
	loans, err := s.lm.RecentLoans(r.Context(), principal(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, loans)
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.lm.GetLoan(r.Context(), principal(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, loan)
}

func (s *Server) updateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req loanEditRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	borrowed, due, err := checkoutDates(req.BorrowedDate, req.DueDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	returned, err := optionalDate("returned_date", req.ReturnedDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.lm.UpdateLoan(r.Context(), principal(r), id, library.LoanEdit{
		BorrowedDate: borrowed,
		DueDate:      *due,
		ReturnedDate: returned,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "貸出情報を更新しました", Data: loan})
}

func (s *Server) deleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteLoan(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "貸出記録を削除しました"})
}

func borrowStatusFilter(q *query) library.BorrowStatusFilter {
	return library.BorrowStatusFilter{
		Search: q.str("search"),
		Grade:  q.int("grade"),
		Class:  q.str("class"),
		Status: q.str("status"),
	}
}

func (s *Server) borrowStatus(w http.ResponseWriter, r *http.Request) {
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
	writeData(w, http.StatusOK, bs)
}
