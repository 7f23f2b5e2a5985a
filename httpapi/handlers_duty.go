package httpapi

import (
	"net/http"

	"school-library/library"
)

type dutyRequest struct {
	VisitorCount int    `json:"visitor_count" validate:"gte=0"`
	Reflection   string `json:"reflection" validate:"max=2000"`
	StudentName1 string `json:"student_name_1" validate:"max=255"`
	StudentName2 string `json:"student_name_2" validate:"max=255"`
	MemberID1    *int64 `json:"student_id" validate:"omitempty,gt=0"`
	MemberID2    *int64 `json:"student_id_2" validate:"omitempty,gt=0"`
}

func (s *Server) listDuties(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListDuties(r.Context(), principal(r), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) todayDuty(w http.ResponseWriter, r *http.Request) {
	shift := newQuery(r).str("shift_type")
	if shift == "" {
		shift = library.ShiftLunch
	}
	if !library.ValidShift(shift) {
		s.fail(w, r, &library.ValidationError{Field: "shift_type", Message: "must be lunch or after_school"})
		return
	}
	duty, err := s.lm.TodayDuty(r.Context(), principal(r), shift)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, duty)
}

func (s *Server) updateDuty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req dutyRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	duty, err := s.lm.UpdateDuty(r.Context(), principal(r), id, library.DutyUpdate{
		VisitorCount: req.VisitorCount,
		Reflection:   req.Reflection,
		StudentName1: req.StudentName1,
		StudentName2: req.StudentName2,
		MemberID1:    req.MemberID1,
		MemberID2:    req.MemberID2,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "図書当番日誌を保存しました", Data: duty})
}

func (s *Server) deleteDuty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteDuty(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "図書当番日誌を削除しました"})
}

func (s *Server) usageStatistics(w http.ResponseWriter, r *http.Request) {
	us, err := s.lm.UsageStatistics(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, us)
}

func (s *Server) chartData(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	cd, err := s.lm.ChartData(r.Context(), principal(r), q.str("period"), q.str("data_type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cd)
}
