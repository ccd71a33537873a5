package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/collections"
	"github.com/covelabs/docdex/internal/store"
)

// maxUploadBytes bounds multipart file uploads.
const maxUploadBytes = 64 << 20

func pageFromQuery(c echo.Context) store.Page {
	page := store.Page{Number: 1, Size: 20}
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		page.Number = v
	}
	if v, err := strconv.Atoi(c.QueryParam("page_size")); err == nil {
		page.Size = v
	}
	return page
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", apperr.ErrInvalidInput, name)
	}
	return id, nil
}

type pageResponse struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"page_size"`
}

// Collections

type createCollectionRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	CustomPrompt string `json:"custom_prompt"`
}

func (s *Server) handleCreateCollection(c echo.Context) error {
	var req createCollectionRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrInvalidInput)
	}
	view, err := s.collections.Create(c.Request().Context(), currentUser(c), req.Name, req.Description, req.CustomPrompt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleListCollections(c echo.Context) error {
	page := pageFromQuery(c)
	views, total, err := s.collections.List(c.Request().Context(), currentUser(c), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse{Items: views, Total: total, Page: page.Number, Size: page.Size})
}

func (s *Server) handleGetCollection(c echo.Context) error {
	id, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	view, err := s.collections.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

type updateCollectionRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	CustomPrompt *string `json:"custom_prompt"`
}

func (s *Server) handleUpdateCollection(c echo.Context) error {
	id, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	var req updateCollectionRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrInvalidInput)
	}
	view, err := s.collections.Update(c.Request().Context(), currentUser(c), id, collections.UpdateInput{
		Name:         req.Name,
		Description:  req.Description,
		CustomPrompt: req.CustomPrompt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeleteCollection(c echo.Context) error {
	id, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	if err := s.collections.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Roles

type grantRoleRequest struct {
	Email string     `json:"email"`
	Role  store.Role `json:"role"`
}

func (s *Server) handleGrantRole(c echo.Context) error {
	id, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	var req grantRoleRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrInvalidInput)
	}
	uc, err := s.collections.GrantRole(c.Request().Context(), currentUser(c), id, req.Email, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, uc)
}

func (s *Server) handleRevokeRole(c echo.Context) error {
	collectionID, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	userID, err := pathUUID(c, "user_id")
	if err != nil {
		return err
	}
	if err := s.collections.RevokeRole(c.Request().Context(), currentUser(c), collectionID, userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListRoles(c echo.Context) error {
	id, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	page := pageFromQuery(c)
	roles, total, err := s.collections.ListRoles(c.Request().Context(), currentUser(c), id, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse{Items: roles, Total: total, Page: page.Number, Size: page.Size})
}

// Resources

func (s *Server) handleUploadResource(c echo.Context) error {
	collectionID, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field 'file' required", apperr.ErrInvalidInput)
	}
	if fileHeader.Size > maxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrInvalidInput, maxUploadBytes)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("%w: opening upload: %v", apperr.ErrInvalidInput, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return fmt.Errorf("%w: reading upload: %v", apperr.ErrInvalidInput, err)
	}

	contentType := fileHeader.Header.Get("Content-Type")
	res, err := s.ingest.IngestFile(c.Request().Context(), currentUser(c), collectionID, fileHeader.Filename, contentType, data)
	if err != nil && res == nil {
		return err
	}
	// Pipeline failures are reported on the resource row, not as a
	// failed request: the resource exists, it just is not searchable.
	return c.JSON(http.StatusCreated, res)
}

type ingestURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleIngestURL(c echo.Context) error {
	collectionID, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	var req ingestURLRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrInvalidInput)
	}
	res, err := s.ingest.IngestURL(c.Request().Context(), currentUser(c), collectionID, req.URL)
	if err != nil && res == nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListResources(c echo.Context) error {
	collectionID, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	page := pageFromQuery(c)
	resources, total, err := s.ingest.ListResources(c.Request().Context(), currentUser(c), collectionID, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse{Items: resources, Total: total, Page: page.Number, Size: page.Size})
}

func (s *Server) handleGetResource(c echo.Context) error {
	resourceID, err := pathUUID(c, "resource_id")
	if err != nil {
		return err
	}
	view, err := s.ingest.GetResource(c.Request().Context(), currentUser(c), resourceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDeleteResource(c echo.Context) error {
	resourceID, err := pathUUID(c, "resource_id")
	if err != nil {
		return err
	}
	if err := s.ingest.DeleteResource(c.Request().Context(), currentUser(c), resourceID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListChunks(c echo.Context) error {
	resourceID, err := pathUUID(c, "resource_id")
	if err != nil {
		return err
	}
	page := pageFromQuery(c)
	chunks, total, err := s.ingest.ListChunks(c.Request().Context(), currentUser(c), resourceID, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pageResponse{Items: chunks, Total: total, Page: page.Number, Size: page.Size})
}

// Search

type searchRequest struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleSearch(c echo.Context) error {
	collectionID, err := pathUUID(c, "collection_id")
	if err != nil {
		return err
	}
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrInvalidInput)
	}
	docs, err := s.retrieval.Search(c.Request().Context(), currentUser(c), collectionID, req.Query, req.Keywords)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"results": docs})
}
