package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"facet/internal/geom"
	"facet/internal/recon"
)

type createSessionRequest struct {
	ProjectName string `json:"project_name" binding:"required"`
	RoomType    string `json:"room_type"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.sessions.Create(c.Request.Context(), req.ProjectName, req.RoomType)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id":   created.ID,
		"project_name": created.ProjectName,
		"room_type":    created.RoomType,
		"created_at":   created.CreatedAt,
	})
}

func (s *Server) listSessions(c *gin.Context) {
	summaries, err := s.sessions.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, gin.H{
			"session_id":       summary.ID,
			"project_name":     summary.ProjectName,
			"room_type":        summary.RoomType,
			"image_count":      summary.ImageCount,
			"annotation_count": summary.AnnotationCount,
			"status":           summary.Status,
			"created_at":       summary.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

type poseRequest struct {
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"position"`
	Rotation struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
		W float64 `json:"w"`
	} `json:"rotation"`
}

type addImageRequest struct {
	Image          string      `json:"image" binding:"required"`
	Pose           poseRequest `json:"pose"`
	Transcript     string      `json:"transcript"`
	Classification string      `json:"classification"`
	Confidence     float64     `json:"confidence"`
}

func (s *Server) addImage(c *gin.Context) {
	var req addImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	imageBytes, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64 encoded"})
		return
	}
	pose := geom.Pose{
		Position: geom.Vec3{X: req.Pose.Position.X, Y: req.Pose.Position.Y, Z: req.Pose.Position.Z},
		Rotation: geom.Quat{X: req.Pose.Rotation.X, Y: req.Pose.Rotation.Y, Z: req.Pose.Rotation.Z, W: req.Pose.Rotation.W},
	}
	imageCount, annotationCount, err := s.sessions.AddImage(c.Request.Context(),
		c.Param("id"), imageBytes, pose, req.Transcript, req.Classification, req.Confidence)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image_count":      imageCount,
		"annotation_count": annotationCount,
	})
}

type reconstructRequest struct {
	Quality string `json:"quality"`
}

func (s *Server) startReconstruction(c *gin.Context) {
	var req reconstructRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.manager.StartJob(c.Request.Context(), c.Param("id"), req.Quality)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":            job.ID,
		"status":            job.Status,
		"quality":           job.Quality,
		"estimated_minutes": job.EstimateMinutes,
	})
}

func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.manager.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}

func (s *Server) jobArtifact(c *gin.Context) {
	path, err := s.manager.Artifact(c.Request.Context(), c.Param("id"), c.Param("format"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.FileAttachment(path, "model."+c.Param("format"))
}

func jobResponse(job *recon.Job) gin.H {
	out := gin.H{
		"job_id":            job.ID,
		"session_id":        job.SessionID,
		"quality":           job.Quality,
		"status":            job.Status,
		"progress":          job.Progress,
		"stage":             job.Stage,
		"message":           job.Message,
		"errors":            job.Errors,
		"outputs":           job.Outputs,
		"estimated_minutes": job.EstimateMinutes,
		"created_at":        job.CreatedAt,
	}
	if job.StartedAt != nil {
		out["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		out["completed_at"] = job.CompletedAt
	}
	return out
}
