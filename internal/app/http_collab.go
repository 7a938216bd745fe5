package app

import (
	"net/http"
	"strconv"
	"strings"
)

func (s *HTTPServer) routeMessage(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodPost:
			var body CreateMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateMessage(r.Context(), session, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		case http.MethodGet:
			query := r.URL.Query()
			limit := 0
			if raw := query.Get("limit"); raw != "" {
				limit, _ = strconv.Atoi(raw)
			}
			payload, err := s.service.ListMessages(r.Context(), session, ListMessagesInput{
				ChannelID:       strings.TrimSpace(query.Get("channelId")),
				ConversationID:  strings.TrimSpace(query.Get("conversationId")),
				ParentMessageID: strings.TrimSpace(query.Get("parentMessageId")),
				Cursor:          strings.TrimSpace(query.Get("cursor")),
				Limit:           limit,
			})
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	messageID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetMessage(r.Context(), session, messageID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body struct {
				Body string `json:"body"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.EditMessage(r.Context(), session, messageID, body.Body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteMessage(r.Context(), session, messageID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "reactions" && r.Method == http.MethodPost {
		var body struct {
			Value string `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ToggleReaction(r.Context(), session, messageID, body.Value)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeTask(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body CreateTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateTask(r.Context(), session, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	taskID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetTask(r.Context(), session, taskID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body UpdateTaskInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateTask(r.Context(), session, taskID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteTask(r.Context(), session, taskID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "status":
			if r.Method != http.MethodPatch {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.TransitionTask(r.Context(), session, taskID, body.Status)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case "assignee":
			if r.Method != http.MethodPatch {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				AssignedTo string `json:"assignedTo"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AssignTask(r.Context(), session, taskID, body.AssignedTo)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case "comments":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					Body string `json:"body"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.CreateTaskComment(r.Context(), session, taskID, body.Body)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, payload)
			case http.MethodGet:
				items, err := s.service.ListTaskComments(r.Context(), session, taskID)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"comments": items})
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		case "attachments":
			switch r.Method {
			case http.MethodPost:
				var body CreateAttachmentInput
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.CreateTaskAttachment(r.Context(), session, taskID, body)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, payload)
			case http.MethodGet:
				items, err := s.service.ListTaskAttachments(r.Context(), session, taskID)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"attachments": items})
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeAttachment(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 1 || r.Method != http.MethodDelete {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err := s.service.DeleteTaskAttachment(r.Context(), session, parts[0]); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleWorkspaceRooms(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.service.ListRooms(r.Context(), session, workspaceID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": items})
	case http.MethodPost:
		var body CreateRoomInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateRoom(r.Context(), session, workspaceID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) routeRoom(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	roomID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetRoom(r.Context(), session, roomID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteRoom(r.Context(), session, roomID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "join":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.JoinRoom(r.Context(), session, roomID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case "messages":
			switch r.Method {
			case http.MethodGet:
				items, err := s.service.ListRoomMessages(r.Context(), session, roomID)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"messages": items})
			case http.MethodPost:
				var body struct {
					Body  string `json:"body"`
					Image string `json:"image"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.CreateRoomMessage(r.Context(), session, roomID, body.Body, body.Image)
				if err != nil {
					s.fail(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, payload)
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleWorkspaceNotes(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		channelID := strings.TrimSpace(r.URL.Query().Get("channelId"))
		items, err := s.service.ListNotes(r.Context(), session, workspaceID, channelID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notes": items})
	case http.MethodPost:
		var body NoteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateNote(r.Context(), session, workspaceID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) routeNote(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	noteID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			var body NoteInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateNote(r.Context(), session, noteID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteNote(r.Context(), session, noteID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "pin" && r.Method == http.MethodPost {
		payload, err := s.service.ToggleNotePin(r.Context(), session, noteID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleWorkspaceFAQs(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		channelID := strings.TrimSpace(r.URL.Query().Get("channelId"))
		items, err := s.service.ListFAQs(r.Context(), session, workspaceID, channelID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"faqs": items})
	case http.MethodPost:
		var body FAQInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateFAQ(r.Context(), session, workspaceID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) routeFAQ(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	faqID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteFAQ(r.Context(), session, faqID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "upvote":
			payload, err := s.service.UpvoteFAQ(r.Context(), session, faqID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case "pin":
			payload, err := s.service.ToggleFAQPin(r.Context(), session, faqID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleWorkspaceDocuments(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		channelID := strings.TrimSpace(r.URL.Query().Get("channelId"))
		items, err := s.service.ListDocuments(r.Context(), session, workspaceID, channelID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})
	case http.MethodPost:
		var body DocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateDocument(r.Context(), session, workspaceID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) routeDocument(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	documentID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && parts[1] == "download" && r.Method == http.MethodGet {
		payload, err := s.service.DocumentDownloadURL(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
