package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"order-store/internal/ingest"
	"order-store/internal/models"
	"order-store/internal/service"
	"order-store/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Date bounds used by the legacy product/date route when none are given
const (
	legacyDateFrom = "2023-01-01"
	legacyDateTo   = "2023-12-31"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	queryService *service.QueryService
	importer     *ingest.Importer
	dataDir      string
}

// NewHandler creates a new HTTP handler. dataDir holds the df_<Collection>.csv import files.
func NewHandler(
	orderService *service.OrderService,
	queryService *service.QueryService,
	importer *ingest.Importer,
	dataDir string,
) *Handler {
	return &Handler{
		orderService: orderService,
		queryService: queryService,
		importer:     importer,
		dataDir:      dataDir,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:order_id", h.getOrder)
		v1.GET("/orders/by-product/:product_id", h.ordersByProduct)
		v1.GET("/orders/by-date/:order_id/:order_date", h.ordersByOrderDate)
		v1.GET("/orders/by-product-date", h.ordersByProductDate)
		v1.GET("/orders/filter", h.filterOrders)
		v1.GET("/customers/:customer_id/orders", h.ordersForCustomer)
		v1.GET("/products/sorted-by-price", h.sortProductsByPrice)
		v1.GET("/indexes/:index", h.queryIndex)

		v1.PUT("/records/:collection", h.putRecord)
		v1.GET("/records/:collection/:key", h.getRecord)

		v1.POST("/import/:collection", h.importCSV)
	}

	// Flat paths used by existing clients
	router.POST("/add_order", h.createOrder)
	router.GET("/query_by_product/:product_id", h.ordersByProduct)
	router.GET("/query_by_order_date/:order_id/:order_date", h.ordersByOrderDate)
	router.GET("/query_orders_by_product_date", h.legacyOrdersByProductDate)
	router.GET("/sort_products_by_price", h.sortProductsByPrice)
	router.GET("/filter_orders_by_status_customer", h.filterOrders)
	router.GET("/query_orders_for_customer", h.ordersForCustomer)
	router.GET("/import_products", h.importDataFile(models.CollectionProducts))
	router.GET("/import_customers", h.importDataFile(models.CollectionCustomers))
	router.GET("/import_orders", h.importDataFile(models.CollectionOrders))
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var order models.Order

	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.orderService.PutOrder(c.Request.Context(), &order); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Order added successfully!",
		"order_id": order.OrderID,
	})
}

// getOrder handles get order by order_id
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// putRecord inserts or replaces a record of any collection from a flat JSON object
func (h *Handler) putRecord(c *gin.Context) {
	rec, err := decodeRecord(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.orderService.PutRecord(c.Request.Context(), c.Param("collection"), rec); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) getRecord(c *gin.Context) {
	rec, err := h.orderService.GetRecord(c.Request.Context(), c.Param("collection"), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ordersByProduct(c *gin.Context) {
	records, err := h.queryService.GetOrdersByProduct(c.Request.Context(), c.Param("product_id"))
	respond(c, records, err)
}

func (h *Handler) ordersByOrderDate(c *gin.Context) {
	records, err := h.queryService.GetOrdersByOrderIDAndDate(c.Request.Context(), c.Param("order_id"), c.Param("order_date"))
	respond(c, records, err)
}

func (h *Handler) ordersByProductDate(c *gin.Context) {
	records, err := h.queryService.GetOrdersByProductAndDateRange(c.Request.Context(),
		c.Query("product_id"), c.Query("date_from"), c.Query("date_to"))
	respond(c, records, err)
}

// legacyOrdersByProductDate defaults the range to calendar year 2023
func (h *Handler) legacyOrdersByProductDate(c *gin.Context) {
	records, err := h.queryService.GetOrdersByProductAndDateRange(c.Request.Context(),
		c.Query("product_id"),
		c.DefaultQuery("date_from", legacyDateFrom),
		c.DefaultQuery("date_to", legacyDateTo))
	respond(c, records, err)
}

func (h *Handler) filterOrders(c *gin.Context) {
	records, err := h.queryService.FilterOrdersByStatusAndCustomer(c.Request.Context(), c.Query("status"), c.Query("customer_id"))
	respond(c, records, err)
}

// ordersForCustomer reads customer_id from the path, or from the query on the legacy route
func (h *Handler) ordersForCustomer(c *gin.Context) {
	customerID := c.Param("customer_id")
	if customerID == "" {
		customerID = c.Query("customer_id")
	}

	records, err := h.queryService.GetOrdersForCustomer(c.Request.Context(), customerID)
	respond(c, records, err)
}

func (h *Handler) sortProductsByPrice(c *gin.Context) {
	records, err := h.queryService.SortProductsByPrice(c.Request.Context())
	respond(c, records, err)
}

// queryIndex takes the index key values as query parameters
func (h *Handler) queryIndex(c *gin.Context) {
	keys := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			keys[k] = v[0]
		}
	}

	records, err := h.queryService.QueryIndex(c.Request.Context(), c.Param("index"), keys)
	respond(c, records, err)
}

// importCSV imports the CSV request body into a collection
func (h *Handler) importCSV(c *gin.Context) {
	result, err := h.importer.ImportCSV(c.Request.Context(), c.Param("collection"), c.Request.Body, "request")
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// importDataFile imports df_<Collection>.csv from the data directory
func (h *Handler) importDataFile(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := filepath.Join(h.dataDir, ingest.DataFileName(collection))

		result, err := h.importer.ImportFile(c.Request.Context(), collection, path)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("%s data imported successfully!", collection),
			"result":  result,
		})
	}
}

func respond(c *gin.Context, records []models.Record, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "Internal error"

	switch {
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "Record not found"
	case errors.Is(err, models.ErrInvalidIndex):
		status, msg = http.StatusBadRequest, "Invalid index"
	case errors.Is(err, models.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, "Invalid argument"
	case errors.Is(err, models.ErrCoercion):
		status, msg = http.StatusUnprocessableEntity, "Numeric coercion failed"
	case errors.Is(err, models.ErrBackendUnavailable):
		status, msg = http.StatusServiceUnavailable, "Backend unavailable"
	}

	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// decodeRecord reads a flat JSON object. Numbers and booleans are kept as text;
// nested values are rejected.
func decodeRecord(body io.Reader) (models.Record, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	rec := make(models.Record, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			rec[k] = val
		case json.Number:
			rec[k] = val.String()
		case bool:
			rec[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("attribute %q must be a scalar", k)
		}
	}
	return rec, nil
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
