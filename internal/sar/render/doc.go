// Package render draws diagnostic views of detection products: static PNG
// heatmaps with gonum/plot and interactive HTML charts with go-echarts.
package render
