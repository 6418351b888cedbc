// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"errors"
	"net/http"

	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/skills"
	"github.com/gin-gonic/gin"
)

// SkillsResponse for API
type SkillsResponse struct {
	FFmpeg struct {
		Binary        string           `json:"binary"`
		Version       string           `json:"version"`
		Configuration string           `json:"configuration"`
		Libraries     []skills.Library `json:"libraries"`
	} `json:"ffmpeg"`

	Encoder struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
	} `json:"encoder"`

	Codecs struct {
		Audio []SkillsCodec `json:"audio"`
	} `json:"codecs"`
}

type SkillsCodec struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Encoders []string `json:"encoders"`
	Decoders []string `json:"decoders"`
}

func skillsToAPI(s skills.Skills, encoder string) SkillsResponse {
	resp := SkillsResponse{}

	resp.FFmpeg.Binary = s.Binary
	resp.FFmpeg.Version = s.Version
	resp.FFmpeg.Configuration = s.Configuration
	resp.FFmpeg.Libraries = s.Libraries
	if resp.FFmpeg.Libraries == nil {
		resp.FFmpeg.Libraries = []skills.Library{}
	}

	resp.Encoder.Name = encoder
	resp.Encoder.Available = s.HasEncoder(encoder)

	resp.Codecs.Audio = make([]SkillsCodec, len(s.Audio))
	for i, c := range s.Audio {
		resp.Codecs.Audio[i] = SkillsCodec{ID: c.ID, Name: c.Name, Encoders: c.Encoders, Decoders: c.Decoders}
	}

	return resp
}

func skillsError(c *gin.Context, msg string, err error) {
	if errors.Is(err, ffmpeg.ErrEncoderNotFound) {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not found", err.Error())
		return
	}
	errResp(c, http.StatusInternalServerError, msg, err.Error())
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	sk, err := h.ffmpeg.Skills(c.Request.Context())
	if err != nil {
		skillsError(c, "Detect failed", err)
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(sk, h.codec))
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.ffmpeg.ReloadSkills(c.Request.Context()); err != nil {
		skillsError(c, "Reload failed", err)
		return
	}
	h.Skills(c)
}
