// Package geo 提供裁判住址到比赛场地的距离计算。
package geo

import (
	"math"

	"sports-manager/backend/internal/engine"
)

// EarthRadiusKm 地球平均半径
const EarthRadiusKm = 6371.0088

// Haversine 两点间大圆距离（公里）
func Haversine(a, b engine.GeoPoint) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLng := rad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceToVenue 满足 engine.DistanceFunc；任一方缺少坐标时返回未知
func DistanceToVenue(ref engine.Referee, game engine.Game) (float64, bool) {
	if ref.Location == nil || game.Location == nil {
		return 0, false
	}
	if !valid(*ref.Location) || !valid(*game.Location) {
		return 0, false
	}
	return Haversine(*ref.Location, *game.Location), true
}

func valid(p engine.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
