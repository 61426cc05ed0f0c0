package handlers

import (
	"log"

	"duka/internal/models"
	"duka/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ProductHandler handles HTTP requests for the product catalog.
type ProductHandler struct {
	productService  *services.ProductService
	categoryService *services.CategoryService
	validate        *validator.Validate
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(productService *services.ProductService, categoryService *services.CategoryService) *ProductHandler {
	return &ProductHandler{
		productService:  productService,
		categoryService: categoryService,
		validate:        validator.New(),
	}
}

// RegisterRoutes registers catalog routes. Reads are available to any
// authenticated user; writes are admin-only.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, admin fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)

	categoryRoutes := router.Group("/categories")
	categoryRoutes.Get("/", h.HandleGetCategories)
	categoryRoutes.Get("/:id/products", h.HandleGetProductsByCategory)

	adminProducts := admin.Group("/products")
	adminProducts.Post("/", h.HandleCreateProduct)
	adminProducts.Put("/:id", h.HandleUpdateProduct)
	adminProducts.Delete("/:id", h.HandleDeleteProduct)

	adminCategories := admin.Group("/categories")
	adminCategories.Post("/", h.HandleCreateCategory)
	adminCategories.Put("/:id", h.HandleUpdateCategory)
	adminCategories.Delete("/:id", h.HandleDeleteCategory)
}

// HandleGetProducts retrieves all products.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.productService.GetAllProducts()
	if err != nil {
		return respondError(c, err, "Could not retrieve products")
	}
	return c.JSON(products)
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.productService.GetProductByID(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not retrieve product")
	}
	return c.JSON(product)
}

// HandleGetProductsByCategory retrieves all products in a category.
func (h *ProductHandler) HandleGetProductsByCategory(c *fiber.Ctx) error {
	products, err := h.productService.GetProductsByCategory(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not retrieve products")
	}
	return c.JSON(products)
}

// HandleCreateProduct creates a new product (admin).
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := c.BodyParser(&product); err != nil {
		log.Printf("Error parsing product request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(product); err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not create product")
	}

	if err := h.productService.CreateProduct(&product); err != nil {
		return respondError(c, err, "Could not create product")
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct updates an existing product (admin).
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := c.BodyParser(&product); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	product.ID = c.Params("id")
	if err := h.validate.Struct(product); err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not update product")
	}

	if err := h.productService.UpdateProduct(&product); err != nil {
		return respondError(c, err, "Could not update product")
	}
	return c.JSON(product)
}

// HandleDeleteProduct deletes a product (admin).
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.productService.DeleteProduct(c.Params("id")); err != nil {
		return respondError(c, err, "Could not delete product")
	}
	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}

// HandleGetCategories retrieves all categories.
func (h *ProductHandler) HandleGetCategories(c *fiber.Ctx) error {
	categories, err := h.categoryService.GetAllCategories()
	if err != nil {
		return respondError(c, err, "Could not retrieve categories")
	}
	return c.JSON(categories)
}

// HandleCreateCategory creates a new category (admin).
func (h *ProductHandler) HandleCreateCategory(c *fiber.Ctx) error {
	var category models.Category
	if err := c.BodyParser(&category); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(category); err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not create category")
	}

	if err := h.categoryService.CreateCategory(&category); err != nil {
		return respondError(c, err, "Could not create category")
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// HandleUpdateCategory updates an existing category (admin).
func (h *ProductHandler) HandleUpdateCategory(c *fiber.Ctx) error {
	var category models.Category
	if err := c.BodyParser(&category); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	category.ID = c.Params("id")
	if err := h.validate.Struct(category); err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not update category")
	}

	if err := h.categoryService.UpdateCategory(&category); err != nil {
		return respondError(c, err, "Could not update category")
	}
	return c.JSON(category)
}

// HandleDeleteCategory deletes a category (admin).
func (h *ProductHandler) HandleDeleteCategory(c *fiber.Ctx) error {
	if err := h.categoryService.DeleteCategory(c.Params("id")); err != nil {
		return respondError(c, err, "Could not delete category")
	}
	return c.JSON(fiber.Map{
		"message": "Category deleted successfully",
	})
}
