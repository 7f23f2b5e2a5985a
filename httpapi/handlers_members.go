package httpapi

import (
	"net/http"

	"school-library/library"
)

type memberRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	StudentNumber string `json:"student_number" validate:"required,max=50"`
	Email         string `json:"email" validate:"omitempty,email"`
	Grade         int    `json:"grade" validate:"gte=0,lte=12"`
	Class         string `json:"class" validate:"max=50"`
	ClassID       *int64 `json:"class_id" validate:"omitempty,gt=0"`
	Password      string `json:"password" validate:"omitempty,min=6"`
	Role          string `json:"role" validate:"omitempty,oneof=member admin"`
}

func (m memberRequest) input() library.MemberInput {
	return library.MemberInput{
		Name:          m.Name,
		StudentNumber: m.StudentNumber,
		Email:         m.Email,
		Grade:         m.Grade,
		Class:         m.Class,
		ClassID:       m.ClassID,
	}
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := library.MemberFilter{
		Search: q.str("search"),
		Grade:  q.int("grade"),
		Class:  q.str("class"),
		Role:   q.str("role"),
	}
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListMembers(r.Context(), principal(r), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role := req.Role
	if role == "" {
		role = library.RoleMember
	}
	m, err := s.lm.CreateMember(r.Context(), principal(r), req.input(), req.Password, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "生徒を登録しました", Data: m})
}

func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.lm.GetMember(r.Context(), principal(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req memberRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.lm.UpdateMember(r.Context(), principal(r), id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "生徒情報を更新しました", Data: m})
}

func (s *Server) deleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteMember(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "生徒を削除しました"})
}

func (s *Server) memberLoans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loans, err := s.lm.LoansOfMember(r.Context(), principal(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, loans)
}

func (s *Server) listClasses(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	nendo := q.int("nendo")
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	classes, err := s.lm.ListClasses(r.Context(), nendo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, classes)
}
