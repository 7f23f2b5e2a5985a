package httpapi

import (
	"net/http"

	"school-library/library"
)

type bookRequestBody struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"max=255"`
	RequesterName string `json:"requester_name" validate:"max=255"`
}

type requestStatusBody struct {
	Status       string `json:"status" validate:"required,oneof=approved rejected"`
	AdminComment string `json:"admin_comment" validate:"max=1000"`
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := library.RequestFilter{Status: q.str("status"), MemberID: q.int64("student_id")}
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListRequests(r.Context(), principal(r), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req bookRequestBody
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	br, err := s.lm.CreateRequest(r.Context(), principal(r), library.BookRequestInput{
		Title:         req.Title,
		Author:        req.Author,
		RequesterName: req.RequesterName,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "リクエストを受け付けました", Data: br})
}

func (s *Server) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req requestStatusBody
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	br, err := s.lm.UpdateRequestStatus(r.Context(), principal(r), id, req.Status, req.AdminComment)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "ステータスを更新しました", Data: br})
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteRequest(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "リクエストを削除しました"})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := library.NotificationFilter{
		UnreadOnly:    q.bool("unread_only"),
		BookRequestID: q.int64("book_request_id"),
	}
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListNotifications(r.Context(), principal(r), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.lm.UnreadCount(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.MarkNotificationRead(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "既読にしました"})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.lm.MarkAllRead(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "すべて既読にしました", Data: map[string]int64{"updated_count": n}})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteNotification(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "通知を削除しました"})
}
