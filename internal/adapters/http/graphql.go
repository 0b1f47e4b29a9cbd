package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"west":  &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"north": &graphql.Field{Type: graphql.Float},
		},
	})

	extentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Extent",
		Fields: graphql.Fields{
			"width_m":  &graphql.Field{Type: graphql.Float},
			"height_m": &graphql.Field{Type: graphql.Float},
		},
	})

	linksType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CopernicusLinks",
		Fields: graphql.Fields{
			"scihub_url":    &graphql.Field{Type: graphql.String},
			"eobrowser_url": &graphql.Field{Type: graphql.String},
		},
	})

	tileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tile",
		Fields: graphql.Fields{
			"zoom": &graphql.Field{Type: graphql.Int},
			"x":    &graphql.Field{Type: graphql.Int},
			"y":    &graphql.Field{Type: graphql.Int},
			"url":  &graphql.Field{Type: graphql.String},
		},
	})

	areaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Area",
		Fields: graphql.Fields{
			"bounds":   &graphql.Field{Type: boundsType},
			"center":   &graphql.Field{Type: geoPointType},
			"extent_m": &graphql.Field{Type: extentType},
			"links":    &graphql.Field{Type: linksType},
		},
	})

	cycleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FetchCycle",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"session_id": &graphql.Field{Type: graphql.String},
			"bounds":     &graphql.Field{Type: boundsType},
			"state":      &graphql.Field{Type: graphql.String},
			"strategy":   &graphql.Field{Type: graphql.String},
			"error":      &graphql.Field{Type: graphql.String},
			"started_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.FetchCycle).StartedAt.UTC().Format(time.RFC3339), nil
				},
			},
			"finished_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if f := p.Source.(domain.FetchCycle).FinishedAt; f != nil {
						return f.UTC().Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
		},
	})

	cyclePageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FetchCyclePage",
		Fields: graphql.Fields{
			"total": &graphql.Field{Type: graphql.Int},
			"items": &graphql.Field{Type: graphql.NewList(cycleType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"tile": &graphql.Field{
				Type:        tileType,
				Description: "Map tile containing a point",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 14},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					img, err := deps.Areas.Tile(p.Args["lat"].(float64), p.Args["lon"].(float64), p.Args["zoom"].(int))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"zoom": img.Tile.Zoom,
						"x":    img.Tile.X,
						"y":    img.Tile.Y,
						"url":  img.URL,
					}, nil
				},
			},
			"links": &graphql.Field{
				Type:        linksType,
				Description: "Copernicus and EO Browser links for a point",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from": &graphql.ArgumentConfig{Type: graphql.String},
					"to":   &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var period domain.Period
					var err error
					if s, ok := p.Args["from"].(string); ok && s != "" {
						if period.From, err = domain.ParseDate(s); err != nil {
							return nil, err
						}
					}
					if s, ok := p.Args["to"].(string); ok && s != "" {
						if period.To, err = domain.ParseDate(s); err != nil {
							return nil, err
						}
					}
					return deps.Areas.Links(p.Args["lat"].(float64), p.Args["lon"].(float64), period)
				},
			},
			"area": &graphql.Field{
				Type:        areaType,
				Description: "Resolve a point or a GeoJSON document into an area",
				Args: graphql.FieldConfigArgument{
					"lat":     &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":     &graphql.ArgumentConfig{Type: graphql.Float},
					"geojson": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var in usecases.AreaInput
					if s, ok := p.Args["geojson"].(string); ok && s != "" {
						in.GeoJSON = []byte(s)
					}
					lat, hasLat := p.Args["lat"].(float64)
					lon, hasLon := p.Args["lon"].(float64)
					if hasLat && hasLon {
						in.Point = &domain.GeoPoint{Lat: lat, Lon: lon}
					}
					return deps.Areas.Resolve(in)
				},
			},
			"cycle": &graphql.Field{
				Type:        cycleType,
				Description: "Get a fetch cycle by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Cycles == nil {
						return nil, errors.New("cycle journal not available")
					}
					c, err := deps.Cycles.GetByID(p.Context, p.Args["id"].(string))
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return *c, nil
				},
			},
			"recentCycles": &graphql.Field{
				Type:        cyclePageType,
				Description: "Most recent fetch cycles, optionally for one session",
				Args: graphql.FieldConfigArgument{
					"session": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"offset":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Cycles == nil {
						return nil, errors.New("cycle journal not available")
					}
					items, total, err := deps.Cycles.ListRecent(p.Context,
						p.Args["session"].(string), p.Args["offset"].(int), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"total": total, "items": items}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
