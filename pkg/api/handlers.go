package api

import (
	"errors"
	"net/http"

	"github.com/arrowhead-f/confsys/pkg/acml"
	"github.com/arrowhead-f/confsys/pkg/apes"
)

var (
	errNoBody  = errors.New("api: request body required")
	errBadBody = errors.New("api: request body must be a list or a map")
)

func (s *Server) handleListDocuments(req *Request) Response {
	docs, err := s.store.ListDocuments(req.Query["name"])
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}

	values := make([]apes.Value, 0, len(docs))
	for _, doc := range docs {
		values = append(values, acml.DocumentToValue(doc))
	}
	body := apes.List(values...)
	return Response{Code: http.StatusOK, Body: &body}
}

func (s *Server) handleAddDocuments(req *Request) Response {
	values, resp := bodyList(req)
	if resp != nil {
		return *resp
	}

	docs := make([]acml.Document, 0, len(values))
	for _, value := range values {
		doc, err := acml.DocumentFromValue(value)
		if err != nil {
			return errorResponse(http.StatusBadRequest, err)
		}
		docs = append(docs, doc)
	}

	reports, err := s.store.AddDocuments(docs)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	if unsound(reports) {
		body := acml.ReportsToValue(reports)
		return Response{Code: http.StatusBadRequest, Body: &body}
	}
	return Response{Code: http.StatusNoContent}
}

func (s *Server) handleRemoveDocuments(req *Request) Response {
	if err := s.store.RemoveDocuments(req.Query["name"]); err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	return Response{Code: http.StatusNoContent}
}

func (s *Server) handlePatchDocuments(req *Request) Response {
	values, resp := bodyList(req)
	if resp != nil {
		return *resp
	}

	patches := make([]acml.Patch, 0, len(values))
	for _, value := range values {
		patch, err := acml.PatchFromValue(value)
		if err != nil {
			return errorResponse(http.StatusBadRequest, err)
		}
		patches = append(patches, patch)
	}

	reports, err := s.store.PatchDocuments(patches)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	if unsound(reports) {
		body := acml.ReportsToValue(reports)
		return Response{Code: http.StatusBadRequest, Body: &body}
	}
	return Response{Code: http.StatusNoContent}
}

func (s *Server) handleListTemplates(req *Request) Response {
	values, err := s.store.ListTemplates(req.Query["name"])
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	body := apes.List(values...)
	return Response{Code: http.StatusOK, Body: &body}
}

func (s *Server) handleAddTemplates(req *Request) Response {
	values, resp := bodyList(req)
	if resp != nil {
		return *resp
	}

	if err := s.store.AddTemplates(values); err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}
	return Response{Code: http.StatusNoContent}
}

func (s *Server) handleRemoveTemplates(req *Request) Response {
	if err := s.store.RemoveTemplates(req.Query["name"]); err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	return Response{Code: http.StatusNoContent}
}

func (s *Server) handleValidate(req *Request) Response {
	reports, err := s.store.ValidateDocuments(req.Query["name"])
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	body := acml.ReportsToValue(reports)
	return Response{Code: http.StatusOK, Body: &body}
}

// bodyList reads the request body as a list of values; a single map body
// is accepted as a one-element list.
func bodyList(req *Request) ([]apes.Value, *Response) {
	if !req.HasBody {
		resp := errorResponse(http.StatusBadRequest, errNoBody)
		return nil, &resp
	}
	if items, ok := req.Body.Items(); ok {
		return items, nil
	}
	if req.Body.Kind() == apes.KindMap {
		return []apes.Value{req.Body}, nil
	}
	resp := errorResponse(http.StatusBadRequest, errBadBody)
	return nil, &resp
}

func unsound(reports []acml.Report) bool {
	for _, report := range reports {
		if !report.Sound() {
			return true
		}
	}
	return false
}
