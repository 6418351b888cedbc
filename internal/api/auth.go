// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RequireJWT rejects requests without a valid HS256 bearer token signed
// with secret. Browsers cannot set headers on a websocket handshake, so the
// token is also read from the "token" query parameter.
func RequireJWT(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			errResp(c, http.StatusUnauthorized, "Missing token", "")
			c.Abort()
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			detail := "invalid token"
			if err != nil {
				detail = err.Error()
			}
			errResp(c, http.StatusUnauthorized, "Invalid token", detail)
			c.Abort()
			return
		}

		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			c.Set("subject", sub)
		}
		c.Next()
	}
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
