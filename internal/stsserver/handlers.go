package stsserver

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/pkg/communicator"
	"github.com/ruianderson/sts-proxy/pkg/guides"
	"github.com/ruianderson/sts-proxy/pkg/params"
	"github.com/ruianderson/sts-proxy/pkg/transport"
)

const maxRequestBodyBytes = 1 << 20

type errorBody struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Action  string `json:"action,omitempty"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

func listActionsHandler(store *guides.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actions": store.Registry().Actions()})
	}
}

func getGuideHandler(store *guides.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.Param("action")
		g, err := store.Lookup(action)
		if err != nil {
			writeError(c, http.StatusNotFound, errorBody{Kind: "UnknownAction", Action: action, Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

// runActionHandler takes caller params from the JSON body and per-request
// protocol params from the query string.
func runActionHandler(comm *communicator.Communicator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := strings.TrimSpace(c.Param("action"))
		c.Set(ctxAction, action)

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes+1))
		if err != nil {
			writeError(c, http.StatusBadRequest, errorBody{Kind: "InvalidRequest", Action: action, Message: "read body: " + err.Error()})
			return
		}
		if len(body) > maxRequestBodyBytes {
			writeError(c, http.StatusRequestEntityTooLarge, errorBody{Kind: "InvalidRequest", Action: action, Message: "request body too large"})
			return
		}
		in, err := params.ParseJSON(body)
		if err != nil {
			writeError(c, http.StatusBadRequest, errorBody{Kind: "InvalidRequest", Action: action, Message: err.Error()})
			return
		}
		protocol, err := params.ParseQuery(c.Request.URL.RawQuery)
		if err != nil {
			writeError(c, http.StatusBadRequest, errorBody{Kind: "InvalidRequest", Action: action, Message: err.Error()})
			return
		}
		c.Set(ctxFieldsIn, in.Len())

		out, err := comm.Run(c.Request.Context(), communicator.Request{
			Action:   action,
			Params:   in,
			Protocol: protocol,
		})
		if err != nil {
			status, eb := errorResponse(err, action)
			c.Set(ctxStage, eb.Stage)
			c.Set(ctxErrorKind, eb.Kind)
			if status >= http.StatusInternalServerError {
				logger.Error("action failed",
					zap.String("request_id", c.GetString(requestIDHeaderKey)),
					zap.String("action", action),
					zap.String("stage", eb.Stage),
					zap.Error(err),
				)
			}
			writeError(c, status, eb)
			return
		}

		b, err := out.MarshalJSON()
		if err != nil {
			writeError(c, http.StatusInternalServerError, errorBody{Kind: "Unknown", Action: action, Message: err.Error()})
			return
		}
		c.Set(ctxStage, string(communicator.StageDone))
		c.Set(ctxFieldsOut, out.Len())
		c.Data(http.StatusOK, "application/json; charset=utf-8", b)
	}
}

func errorResponse(err error, action string) (int, errorBody) {
	eb := errorBody{
		Kind:    communicator.Kind(err),
		Action:  action,
		Message: err.Error(),
	}
	var se *communicator.StageError
	if errors.As(err, &se) {
		eb.Stage = string(se.Stage)
		eb.Key = se.Key
		if se.Err != nil {
			eb.Message = se.Err.Error()
		}
	}
	return statusFor(err, eb.Kind), eb
}

func statusFor(err error, kind string) int {
	switch kind {
	case "UnknownAction":
		return http.StatusNotFound
	case "KeyCollision", "UnsupportedValue":
		return http.StatusBadRequest
	case "MalformedDocument":
		return http.StatusBadGateway
	case "TransportError":
		if transport.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, eb errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"error": eb})
}
