package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rangeScope/internal/model"
	"rangeScope/internal/source"
)

type errorResponse struct {
	Error string `json:"error"`
}

type dataResponse struct {
	Data      any   `json:"data"`
	ServeTime int64 `json:"serveTime"`
}

func wrapData(c *gin.Context, status int, data any) {
	c.JSON(status, dataResponse{Data: data, ServeTime: time.Now().UnixMilli()})
}

func wrapError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) calculate(c *gin.Context) {
	var input model.PositionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		wrapError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	if !s.supported(input.ChainID) {
		wrapError(c, http.StatusBadRequest, fmt.Errorf("%w: unsupported chain %d", model.ErrInvalidInput, input.ChainID))
		return
	}

	result, err := s.calc.Calculate(c.Request.Context(), input)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("calculation failed", zap.String("pool", input.PoolID), zap.Error(err))
		}
		wrapError(c, status, err)
		return
	}
	wrapData(c, http.StatusOK, result)
}

func (s *Server) chainHealth(c *gin.Context) {
	chainID, ok := s.parseChain(c, c.Param("chainId"))
	if !ok {
		return
	}
	if s.health == nil {
		wrapError(c, http.StatusServiceUnavailable, errors.New("health checks are not configured"))
		return
	}

	h := s.health.Health(c.Request.Context(), chainID)
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	wrapData(c, status, h)
}

func (s *Server) searchPools(c *gin.Context) {
	raw := c.Query("chainId")
	if raw == "" {
		wrapError(c, http.StatusUnprocessableEntity, errors.New("missing parameter: chainId"))
		return
	}
	chainID, ok := s.parseChain(c, raw)
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" {
		wrapError(c, http.StatusUnprocessableEntity, errors.New("missing parameter: q"))
		return
	}
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n < 0 {
			wrapError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", rawLimit))
			return
		}
		limit = n
	}
	if s.pools == nil {
		wrapError(c, http.StatusServiceUnavailable, errors.New("pool search is not configured"))
		return
	}

	pools, err := s.pools.SearchPools(c.Request.Context(), chainID, query, limit)
	if err != nil {
		wrapError(c, statusFor(err), err)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}
	wrapData(c, http.StatusOK, pools)
}

// parseChain writes a 400 response and returns false when raw is not a
// supported chain id.
func (s *Server) parseChain(c *gin.Context, raw string) (uint64, bool) {
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || chainID == 0 {
		wrapError(c, http.StatusBadRequest, fmt.Errorf("invalid chain id %q", raw))
		return 0, false
	}
	if !s.supported(chainID) {
		wrapError(c, http.StatusBadRequest, fmt.Errorf("unsupported chain %d", chainID))
		return 0, false
	}
	return chainID, true
}
