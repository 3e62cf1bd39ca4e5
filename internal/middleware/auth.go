package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// Context 中的键
const (
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
)

// ErrMissingAuthHeader 表示请求没有携带 token
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回一个必须认证的 Gin 中间件，验证 HS256 签名的 JWT。
// token 的签发不在本服务内，这里只做校验。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Debug("Auth middleware: Missing Authorization header")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Malformed token format")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			return
		}
		if !authenticate(c, tokenStr, jwtSecret) {
			return
		}
		c.Next()
	}
}

// OptionalAuth 有 token 时校验并写入用户信息，没有 token 时匿名放行。
// 无效的 token 仍然返回 401。
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for OptionalAuth middleware")
	}
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if errors.Is(err, ErrMissingAuthHeader) {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}
		if !authenticate(c, tokenStr, jwtSecret) {
			return
		}
		c.Next()
	}
}

// authenticate 校验 token 并设置 Context，失败时已经写回响应。
func authenticate(c *gin.Context, tokenStr, secret string) bool {
	claims, err := validateToken(tokenStr, secret)
	if err != nil {
		logCtx := logrus.WithError(err)
		logCtx.Warn("Auth middleware: Invalid token")
		var validationError *jwt.ValidationError
		if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
			logCtx.Debug("Reason: Token is expired")
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return false
	}

	userID, err := userIDFromClaims(claims)
	if err != nil {
		logrus.WithError(err).Warn("Auth middleware: Invalid user_id claim")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
		return false
	}
	c.Set(ContextUserID, userID)
	if name, ok := claims["name"].(string); ok {
		c.Set(ContextUserName, strings.TrimSpace(name))
	}
	logrus.WithField("user_id", userID).Debug("Auth middleware: User authenticated via JWT")
	return true
}

// userIDFromClaims 支持字符串和数字两种 user_id。JWT 数字默认解析为 float64。
func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	switch v := claims["user_id"].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return strconv.FormatUint(uint64(v), 10), nil
		}
	}
	return "", fmt.Errorf("user_id claim missing or invalid: %v", claims["user_id"])
}

// extractToken 优先读取 Bearer 头，浏览器 WebSocket 无法设置请求头时读取 token 查询参数。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
