package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/findings"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/internal/trading/limits"
	"github.com/clearlane/compliance-engine/pkg/models"
)

type evaluationContextRequest struct {
	ActorID     uuid.UUID  `json:"actor_id"`
	WorkspaceID uuid.UUID  `json:"workspace_id" binding:"required"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
}

func (s *Server) buildContext(c *gin.Context, req evaluationContextRequest) models.EvaluationContext {
	return models.EvaluationContext{
		ActorID:     req.ActorID,
		WorkspaceID: req.WorkspaceID,
		SessionID:   req.SessionID,
		RequestID:   c.GetHeader("X-Request-ID"),
	}
}

type evaluateTransactionRequest struct {
	evaluationContextRequest
	TransactionID uuid.UUID              `json:"transaction_id" binding:"required"`
	Snapshot      map[string]interface{} `json:"snapshot" binding:"required"`
	SkipRuleBased bool                   `json:"skip_rule_based"`
	SkipSemantic  bool                   `json:"skip_semantic"`
}

func (s *Server) evaluateTransaction(c *gin.Context) {
	var req evaluateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	result, err := s.compliance.EvaluateTransaction(
		c.Request.Context(),
		req.TransactionID,
		req.Snapshot,
		s.buildContext(c, req.evaluationContextRequest),
		engine.Options{SkipRuleBased: req.SkipRuleBased, SkipSemantic: req.SkipSemantic},
	)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findingsOrEmpty(result)})
}

type evaluateActivityRequest struct {
	evaluationContextRequest
	UserID       uuid.UUID `json:"user_id" binding:"required"`
	ActivityType string    `json:"activity_type" binding:"required"`
}

func (s *Server) evaluateActivity(c *gin.Context) {
	var req evaluateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	result, err := s.compliance.EvaluateUserActivity(
		c.Request.Context(),
		req.UserID,
		req.ActivityType,
		s.buildContext(c, req.evaluationContextRequest),
	)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findingsOrEmpty(result)})
}

type validateTextRequest struct {
	evaluationContextRequest
	Text string `json:"text" binding:"required"`
}

func (s *Server) validateInput(c *gin.Context) {
	s.handleValidateText(c, s.compliance.ValidateInput)
}

func (s *Server) validateOutput(c *gin.Context) {
	s.handleValidateText(c, s.compliance.ValidateOutput)
}

func (s *Server) handleValidateText(c *gin.Context, validate func(context.Context, string, models.EvaluationContext) (*engine.ValidationResult, error)) {
	var req validateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	result, err := validate(c.Request.Context(), req.Text, s.buildContext(c, req.evaluationContextRequest))
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type validateExchangeRequest struct {
	evaluationContextRequest
	Input  string `json:"input" binding:"required"`
	Output string `json:"output" binding:"required"`
}

func (s *Server) validateExchange(c *gin.Context) {
	var req validateExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	result, err := s.compliance.ValidateExchange(
		c.Request.Context(), req.Input, req.Output,
		s.buildContext(c, req.evaluationContextRequest))
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type checkLimitsRequest struct {
	UserID      uuid.UUID                 `json:"user_id" binding:"required"`
	WorkspaceID uuid.UUID                 `json:"workspace_id" binding:"required"`
	Transaction limits.TransactionDetails `json:"transaction" binding:"required"`
}

func (s *Server) checkTradingLimits(c *gin.Context) {
	var req checkLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	result, err := s.limits.CheckTradingLimits(c.Request.Context(), req.UserID, req.Transaction, req.WorkspaceID)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- RULE ADMINISTRATION ---

type ruleRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category" binding:"required"`
	RuleType    string          `json:"rule_type" binding:"required"`
	Severity    string          `json:"severity" binding:"required"`
	Scope       string          `json:"scope"`
	WorkspaceID *uuid.UUID      `json:"workspace_id,omitempty"`
	Enabled     bool            `json:"enabled"`
	Logic       json.RawMessage `json:"logic" binding:"required"`
}

func (r ruleRequest) toRule() *rules.Rule {
	scope := models.RuleScope(r.Scope)
	if scope == "" {
		scope = models.ScopeSystem
	}
	return &rules.Rule{
		Name:        r.Name,
		Description: r.Description,
		Category:    models.RuleCategory(r.Category),
		Type:        models.RuleType(r.RuleType),
		Severity:    r.Severity,
		Scope:       scope,
		WorkspaceID: r.WorkspaceID,
		Enabled:     r.Enabled,
		LogicJSON:   string(r.Logic),
	}
}

func (s *Server) listRules(c *gin.Context) {
	var category *models.RuleCategory
	if raw := c.Query("category"); raw != "" {
		cat := models.RuleCategory(raw)
		category = &cat
	}
	var workspaceID *uuid.UUID
	if raw := c.Query("workspace_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid workspace_id"))
			return
		}
		workspaceID = &id
	}

	loaded, err := s.ruleStore.ListRules(c.Request.Context(), category, workspaceID)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": loaded})
}

func (s *Server) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	rule := req.toRule()
	if err := s.ruleStore.CreateRule(c.Request.Context(), s.actorID(c), rule); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid rule id"))
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	rule := req.toRule()
	rule.ID = id
	if err := s.ruleStore.UpdateRule(c.Request.Context(), s.actorID(c), rule); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setRuleEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid rule id"))
		return
	}
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.ruleStore.SetEnabled(c.Request.Context(), s.actorID(c), id, *req.Enabled); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

// --- FINDINGS ---

func (s *Server) listFindings(c *gin.Context) {
	filter := findings.ListFilter{Limit: 100}
	if raw := c.Query("workspace_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid workspace_id"))
			return
		}
		filter.WorkspaceID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := models.FindingStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("severity"); raw != "" {
		severity := models.ParseSeverity(raw)
		filter.Severity = &severity
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	loaded, err := s.findings.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": loaded})
}

func (s *Server) getFinding(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid finding id"))
		return
	}
	finding, err := s.findings.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

type transitionRequest struct {
	Status          string     `json:"status" binding:"required"`
	ResolvedBy      *uuid.UUID `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

func (s *Server) transitionFinding(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, errors.Wrap(err, "invalid finding id"))
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	finding, err := s.findings.Transition(c.Request.Context(), id,
		models.FindingStatus(req.Status), req.ResolvedBy, req.ResolutionNotes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, findings.ErrInvalidTransition) || errors.Is(err, findings.ErrResolutionRequired) {
			status = http.StatusConflict
		}
		s.writeError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func (s *Server) actorID(c *gin.Context) uuid.UUID {
	if raw := c.GetHeader("X-Actor-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	return uuid.Nil
}

func findingsOrEmpty(result []*findings.Finding) []*findings.Finding {
	if result == nil {
		return []*findings.Finding{}
	}
	return result
}
